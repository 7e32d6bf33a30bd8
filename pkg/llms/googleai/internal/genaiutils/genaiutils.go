package genaiutils

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

const (
	RoleModel = "model"
	RoleUser  = "user"
)

// ConvertTools converts tool definitions to a single genai tool
// with one function declaration per definition.
func ConvertTools(defs []chatmodel.ToolDefinition) ([]*genai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return nil, errors.Errorf("tool [%d]: name is required", i)
		}
		decl := &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
		}
		if def.InputSchema != nil {
			sc, err := ConvertJSONSchemaDefinition(def.InputSchema)
			if err != nil {
				return nil, errors.Wrapf(err, "tool [%d]", i)
			}
			decl.Parameters = sc
		}
		decls = append(decls, decl)
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// ConvertJSONSchemaDefinition converts a jsonschema.Schema to a genai.Schema.
func ConvertJSONSchemaDefinition(jschema *jsonschema.Schema) (*genai.Schema, error) {
	if jschema == nil {
		return nil, nil
	}

	schema := &genai.Schema{
		Type:        ConvertJSONSchemaType(jschema.Type),
		Description: jschema.Description,
		Required:    jschema.Required,
	}
	for _, e := range jschema.Enum {
		s, ok := e.(string)
		if !ok {
			return nil, errors.Errorf("enum value %v: only strings are supported", e)
		}
		schema.Enum = append(schema.Enum, s)
	}

	if jschema.Properties != nil {
		schema.Properties = make(map[string]*genai.Schema)
		for pair := jschema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			propSchema, err := ConvertJSONSchemaDefinition(pair.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "property [%s]", pair.Key)
			}
			schema.Properties[pair.Key] = propSchema
		}
	}

	if jschema.Items != nil {
		itemsSchema, err := ConvertJSONSchemaDefinition(jschema.Items)
		if err != nil {
			return nil, errors.Wrap(err, "items")
		}
		schema.Items = itemsSchema
	}

	return schema, nil
}

// ConvertJSONSchemaType converts a JSON schema type to a genai.Type.
func ConvertJSONSchemaType(dt string) genai.Type {
	switch dt {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}

// ConvertMessages converts the conversation history to genai contents.
// Function responses carry the name of the originating call,
// which is resolved from the earlier tool use blocks.
func ConvertMessages(messages []chatmodel.Message) ([]*genai.Content, error) {
	names := map[string]string{}
	history := make([]*genai.Content, 0, len(messages))

	for i, msg := range messages {
		c := &genai.Content{}
		switch msg.Role {
		case chatmodel.RoleUser:
			c.Role = RoleUser
		case chatmodel.RoleAssistant:
			c.Role = RoleModel
		default:
			return nil, errors.Errorf("message %d: role %q not supported", i, msg.Role)
		}

		for _, block := range msg.Content {
			switch b := block.(type) {
			case chatmodel.TextBlock:
				if b.Text == "" {
					continue
				}
				c.Parts = append(c.Parts, &genai.Part{Text: b.Text})
			case chatmodel.ToolUseBlock:
				args, err := b.Arguments()
				if err != nil {
					return nil, errors.Wrapf(err, "message %d: tool %s arguments", i, b.Name)
				}
				names[b.ID] = b.Name
				c.Parts = append(c.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   b.ID,
						Name: b.Name,
						Args: args,
					},
				})
			case chatmodel.ToolResultBlock:
				name, ok := names[b.ToolUseID]
				if !ok {
					return nil, errors.Errorf("message %d: no tool use for result %s", i, b.ToolUseID)
				}
				c.Parts = append(c.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       b.ToolUseID,
						Name:     name,
						Response: functionResponse(b),
					},
				})
			default:
				return nil, errors.Errorf("message %d: content %T not supported", i, block)
			}
		}

		if len(c.Parts) > 0 {
			history = append(history, c)
		}
	}
	return history, nil
}

// functionResponse uses the "output" and "error" keys
// recognized by the Gemini API.
func functionResponse(b chatmodel.ToolResultBlock) map[string]any {
	var value any = b.Content
	var decoded any
	if err := json.Unmarshal([]byte(b.Content), &decoded); err == nil {
		value = decoded
	}
	if b.IsError {
		return map[string]any{"error": value}
	}
	return map[string]any{"output": value}
}

// ConvertResponse converts the first candidate of the response.
// Function calls without an ID are assigned a generated one.
func ConvertResponse(resp *genai.GenerateContentResponse) (*llms.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("no content in generation response")
	}

	res := &llms.Response{
		ID: resp.ResponseID,
	}
	if resp.UsageMetadata != nil {
		res.Usage = llms.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount + resp.UsageMetadata.ThoughtsTokenCount),
		}
	}

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				input, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, errors.Wrap(err, "failed to marshal function call arguments")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				res.Content = append(res.Content, chatmodel.ToolUseBlock{
					ID:    id,
					Name:  part.FunctionCall.Name,
					Input: input,
				})
			case part.Thought:
				continue
			case part.Text != "":
				res.Content = append(res.Content, chatmodel.TextBlock{Text: part.Text})
			}
		}
	}

	switch {
	case res.HasToolUse():
		res.StopReason = llms.StopReasonToolUse
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		res.StopReason = llms.StopReasonMaxTokens
	default:
		res.StopReason = llms.StopReasonEndTurn
	}
	return res, nil
}

func Float32Ptr(f float32) *float32 {
	if f == 0 {
		return nil
	}
	return &f
}
