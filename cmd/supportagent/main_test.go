package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/config"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/mocks/mockllms"
	"github.com/effective-security/supportagent/mocks/mockmcp"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/tools/support"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		config.EnvAnthropicAPIKey,
		config.EnvModelName,
		config.EnvMaxTokens,
		config.EnvTemperature,
		config.EnvLogLevel,
		config.EnvDefaultUserID,
		config.EnvToolsHost,
		config.EnvToolsPort,
	} {
		t.Setenv(k, "")
	}
}

// toolModel replies to a user question with a call of the tool,
// and to the tool results with their content.
func toolModel(t *testing.T, tool string) llms.Model {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("claude-test").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderAnthropic).AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *llms.Request) (*llms.Response, error) {
			last := req.Messages[len(req.Messages)-1]
			var results []string
			for _, block := range last.Content {
				if rb, ok := block.(chatmodel.ToolResultBlock); ok {
					results = append(results, rb.Content)
				}
			}
			if len(results) > 0 {
				return &llms.Response{
					Content:    []chatmodel.ContentBlock{chatmodel.TextBlock{Text: "Tool says: " + strings.Join(results, "\n")}},
					StopReason: llms.StopReasonEndTurn,
				}, nil
			}
			return &llms.Response{
				Content: []chatmodel.ContentBlock{
					chatmodel.ToolUseBlock{ID: "toolu_" + uuid.NewString(), Name: tool, Input: []byte(`{}`)},
				},
				StopReason: llms.StopReasonToolUse,
			}, nil
		}).AnyTimes()
	return m
}

func useModel(t *testing.T, m llms.Model) {
	orig := newModel
	newModel = func(*config.Config) (llms.Model, error) { return m, nil }
	t.Cleanup(func() { newModel = orig })
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-c", "a.yaml", "-t", "pipe", "--user", "user_002", "--examples", "--trace", "-v"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "a.yaml", o.configFile)
	assert.Equal(t, "pipe", o.transport)
	assert.Equal(t, "user_002", o.userID)
	assert.True(t, o.examples)
	assert.True(t, o.trace)
	assert.True(t, o.verbose)
	assert.Equal(t, "yaml", o.format)

	_, err = parseFlags([]string{"chat"}, &bytes.Buffer{})
	assert.EqualError(t, err, "unexpected argument: chat")

	var stderr bytes.Buffer
	_, err = parseFlags([]string{"--help"}, &stderr)
	assert.True(t, errors.Is(err, pflag.ErrHelp))
	assert.Contains(t, stderr.String(), "--transport")
}

func TestRun_REPL(t *testing.T) {
	clearEnv(t)
	useModel(t, toolModel(t, support.ToolGetAccountBalance))

	in := strings.NewReader(strings.Join([]string{
		"What's my balance?",
		"",
		"user user_002",
		"And now?",
		"user",
		"reset",
		"EXIT",
		"never read",
	}, "\n"))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--log-level", "ERROR"}, in, &stdout, &stderr)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Customer Support Assistant")
	assert.Contains(t, out, "Tools transport: local")
	assert.Contains(t, out, "Logged in as: user_001")
	assert.Contains(t, out, "5420.50")
	assert.Contains(t, out, "Switched to: user_002")
	assert.Contains(t, out, "12750.25")
	assert.Contains(t, out, "Usage: user <user_id>")
	assert.Contains(t, out, "Conversation reset")
	assert.True(t, strings.HasSuffix(out, "Goodbye!\n"), out)
	assert.Equal(t, 2, strings.Count(out, "\nAssistant: "))
}

func TestRun_REPL_EOF(t *testing.T) {
	clearEnv(t)
	useModel(t, toolModel(t, support.ToolGetAccountBalance))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--user", "user_002", "--log-level", "ERROR"}, strings.NewReader(""), &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Logged in as: user_002")
	assert.Contains(t, stdout.String(), "Goodbye!")
}

func TestRun_Examples(t *testing.T) {
	clearEnv(t)
	useModel(t, toolModel(t, support.ToolGetAccountDetails))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--examples", "--trace", "--verbose", "--log-level", "ERROR"}, nil, &stdout, &stderr)
	require.NoError(t, err)

	out := stdout.String()
	for i, q := range ExampleQueries {
		assert.Contains(t, out, "Example "+string(rune('1'+i))+": "+q)
	}
	assert.Equal(t, 4, strings.Count(out, "Tool says: "))
	assert.Contains(t, out, "John Doe")

	errOut := stderr.String()
	assert.Equal(t, 4, strings.Count(errOut, "*** Turn Started ***"))
	assert.Contains(t, errOut, "Tool Start: get_account_details (customer_support)")
}

func TestRun_ModelError(t *testing.T) {
	clearEnv(t)
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("claude-test").AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(nil, errors.New("overloaded")).Times(1)
	useModel(t, m)

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--log-level", "CRITICAL"}, strings.NewReader("hello\nquit\n"), &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Assistant: "+msgTryAgain)
}

func TestRun_TransportError(t *testing.T) {
	clearEnv(t)
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("claude-test").AnyTimes()
	useModel(t, m)

	file := filepath.Join(t.TempDir(), "supportagent.yaml")
	require.NoError(t, os.WriteFile(file, []byte("tools:\n  transport: http\n  url: http://127.0.0.1:1\n  timeout: 2s\n"), 0o600))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-c", file, "--log-level", "CRITICAL"}, strings.NewReader("balance\nexit\n"), &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Tools transport: http")
	assert.Contains(t, stdout.String(), "Assistant: Error: ")
	assert.NotContains(t, stdout.String(), msgTryAgain)
}

func TestRun_AgentError(t *testing.T) {
	clearEnv(t)
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("claude-test").AnyTimes()
	useModel(t, m)

	b := mockmcp.NewMockBridge(ctrl)
	b.EXPECT().Close().Return(nil).Times(1)
	orig := newBridge
	newBridge = func(context.Context, *config.Config, io.Writer) (mcp.Bridge, io.Closer, error) {
		return b, noopCloser{}, nil
	}
	t.Cleanup(func() { newBridge = orig })

	file := filepath.Join(t.TempDir(), "supportagent.yaml")
	require.NoError(t, os.WriteFile(file, []byte("agent:\n  system_prompt: \"{{ .Broken\"\n"), 0o600))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-c", file, "--log-level", "CRITICAL"}, strings.NewReader("quit\n"), &stdout, &bytes.Buffer{})
	require.Error(t, err)
	assert.NotContains(t, stdout.String(), "Assistant:")
}

func TestRun_PrintConfig(t *testing.T) {
	clearEnv(t)

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--print-config", "--transport", "pipe"}, nil, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	out := stdout.String()
	assert.Contains(t, out, "transport: pipe")
	assert.Contains(t, out, "- toolhost")
	assert.Contains(t, out, "name: claude-sonnet-4-20250514")

	stdout.Reset()
	err = run(context.Background(), []string{"--print-config", "--format", "json"}, nil, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), `"transport": "local"`)

	err = run(context.Background(), []string{"--print-config", "--format", "xml"}, nil, &stdout, &bytes.Buffer{})
	assert.EqualError(t, err, "unsupported format: xml")

	err = run(context.Background(), []string{"--transport", "smtp"}, nil, &stdout, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
