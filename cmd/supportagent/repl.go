package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/supportagent/assistants"
	"github.com/effective-security/supportagent/callbacks"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/xlog"
)

// ExampleQueries are run by --examples
var ExampleQueries = []string{
	"What's my account balance?",
	"Show me my recent transactions",
	"I need to update my address to 789 Pine St, Seattle, WA 98101",
	"What are my account details?",
}

const (
	banner = "============================================================"

	msgTryAgain = "Sorry, I encountered an error. Please try again."
)

type console struct {
	session   *assistants.Session
	transport string
	out       io.Writer
	errOut    io.Writer
	pad       *callbacks.Scratchpad
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *console) welcome() {
	c.printf("%s\n  Customer Support Assistant\n  Tools transport: %s\n%s\n", banner, c.transport, banner)
	c.printf("\nAvailable commands:\n")
	c.printf("  - Type your request naturally\n")
	c.printf("  - 'reset' - Clear conversation history\n")
	c.printf("  - 'user <user_id>' - Switch user\n")
	c.printf("  - 'exit' or 'quit' - Exit\n")
	c.printf("\nExample requests:\n")
	for _, q := range ExampleQueries[:2] {
		c.printf("  - %s\n", q)
	}
	c.printf("  - Change my password to NewPass123\n")
	c.printf("%s\n\n", banner)
	c.printf("Logged in as: %s\n", c.session.UserID())
	c.printf("How can I help you today?\n\n")
}

// repl reads the user input line by line until exit or EOF
func (c *console) repl(ctx context.Context, in io.Reader) error {
	c.welcome()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		c.printf("You: ")
		if !scanner.Scan() {
			c.printf("\nGoodbye!\n")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			c.printf("\nExiting...\n")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		cmd := strings.ToLower(line)
		switch {
		case line == "":
			continue
		case cmd == "exit" || cmd == "quit":
			c.printf("\nGoodbye!\n")
			return nil
		case cmd == "reset":
			c.session.Reset()
			c.printf("\nConversation reset\n\n")
			continue
		case strings.HasPrefix(cmd, "user ") || cmd == "user":
			userID := strings.TrimSpace(line[len("user"):])
			if err := c.session.SwitchUser(userID); err != nil {
				c.printf("\nUsage: user <user_id>\n\n")
				continue
			}
			c.printf("\nSwitched to: %s\n\n", userID)
			continue
		}

		c.printf("\nAssistant: %s\n\n", c.send(ctx, line))
	}
}

// runExamples sends the example queries in one session
func (c *console) runExamples(ctx context.Context) error {
	c.printf("Running examples as %s over %s transport...\n", c.session.UserID(), c.transport)
	for i, query := range ExampleQueries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.printf("\n%s\nExample %d: %s\n%s\n", banner, i+1, query, banner)
		c.printf("\n%s\n", c.send(ctx, query))
	}
	return nil
}

// send returns the reply, or the message to show on failure
func (c *console) send(ctx context.Context, input string) string {
	reply, err := c.session.Send(ctx, input)
	c.printTrace()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"session_id", c.session.ID(),
			"err", err.Error(),
		)
		if chatmodel.IsModelInvocation(err) {
			return msgTryAgain
		}
		return "Error: " + err.Error()
	}
	return reply
}

func (c *console) printTrace() {
	if c.pad == nil {
		return
	}
	if stats, transcript := c.pad.Take(c.session.ID()); stats != nil {
		_, _ = c.errOut.Write(transcript)
	}
}
