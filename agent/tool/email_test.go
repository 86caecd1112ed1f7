package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

func newTestMailbox(t *testing.T) (*Mailbox, string) {
	t.Helper()
	root := t.TempDir()
	drafts := filepath.Join(root, "drafts")
	m, err := NewMailbox(MailboxConfig{Dir: filepath.Join(root, "inbox"), DraftDir: drafts, SeedDemo: true})
	require.NoError(t, err)
	return m, drafts
}

func TestMailboxListAndRead(t *testing.T) {
	t.Parallel()

	m, _ := newTestMailbox(t)
	tools := m.Tools()

	list, err := toolByName(t, tools, ToolListEmails).Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, list.Success)
	require.Contains(t, list.Output, "id: sample_investor")
	require.Contains(t, list.Output, "subject: Partnership Opportunity with Acme Corp")

	read, err := toolByName(t, tools, ToolReadEmail).Run(context.Background(), map[string]any{"email_id": "sample_investor"})
	require.NoError(t, err)
	require.True(t, read.Success)
	require.Contains(t, read.Output, "From: investor@acmecorp.com")
	require.Contains(t, read.Output, "Series B")

	missing, err := toolByName(t, tools, ToolReadEmail).Run(context.Background(), map[string]any{"email_id": "../nope"})
	require.NoError(t, err)
	require.False(t, missing.Success)
	require.Contains(t, missing.Error, "not found")
}

func TestMailboxDraftReply(t *testing.T) {
	t.Parallel()

	m, drafts := newTestMailbox(t)
	draft := toolByName(t, m.Tools(), ToolDraftReply)
	require.NotZero(t, draft.Capabilities()&contractx.CapWrite)

	out, err := draft.Run(context.Background(), map[string]any{
		"to":      "investor@acmecorp.com",
		"subject": "Re: Partnership",
		"body":    "Subject: Re: Partnership\n\n<p>Hi Jane,</p>\n\nThanks, **happy** to talk.",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Files, 1)

	file := out.Files[0]
	require.Equal(t, contractx.FileTypeMail, file.Type)
	require.Equal(t, "Re: Partnership", file.Label)
	require.Equal(t, "Hi Jane,\n\nThanks, happy to talk.", file.Fields["body"])
	require.Equal(t, drafts, filepath.Dir(file.Path))

	raw, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "To: <investor@acmecorp.com>\r\n")
	require.True(t, strings.HasSuffix(string(raw), "Thanks, happy to talk.\r\n"))
}

func TestMailboxDraftNeedsBody(t *testing.T) {
	t.Parallel()

	m, _ := newTestMailbox(t)
	out, err := toolByName(t, m.Tools(), ToolDraftReply).Run(context.Background(), map[string]any{
		"to":   "someone@example.com",
		"body": "<br>",
	})
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Empty(t, out.Files)
}

func TestCleanBody(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Hello there", cleanBody("Subject: Hi\n\nHello **there**", "Hi"))
	require.Equal(t, "a\n\nb", cleanBody(`a\n\n\n\nb`, ""))
}

func TestFormatAddressListKeepsAddrSpecPlain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "raj@example.com", want: "<raj@example.com>"},
		{in: "Raj Patel <raj@example.com>", want: `"Raj Patel" <raj@example.com>`},
		{in: "Rāj <raj@example.com>", want: "=?utf-8?q?R=C4=81j?= <raj@example.com>"},
		{in: "a@example.com, b@example.com", want: "<a@example.com>, <b@example.com>"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, formatAddressList(tc.in), tc.in)
	}
}
