package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const (
	defaultEmailLimit = 10
	draftSender       = "user@desktop-agent.local"
	maxEmailBody      = 8000
)

var (
	htmlTag      = regexp.MustCompile(`<[^>]+>`)
	markdownBold = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	manyBlank    = regexp.MustCompile(`\n{3,}`)
)

type MailboxConfig struct {
	Dir      string `envconfig:"DIR" default:"data/emails"`
	DraftDir string `envconfig:"DRAFT_DIR" default:"data/drafts"`
	SeedDemo bool   `envconfig:"SEED_DEMO" default:"true"`
}

// Mailbox serves a flat directory of .eml files and writes drafts next to it.
type Mailbox struct {
	dir      string
	draftDir string
	now      func() time.Time
}

func NewMailbox(cfg MailboxConfig) (*Mailbox, error) {
	if strings.TrimSpace(cfg.Dir) == "" || strings.TrimSpace(cfg.DraftDir) == "" {
		return nil, fmt.Errorf("%w: mailbox and draft dirs are required", contractx.ErrValidation)
	}
	for _, d := range []string{cfg.Dir, cfg.DraftDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	m := &Mailbox{dir: cfg.Dir, draftDir: cfg.DraftDir, now: time.Now}
	if cfg.SeedDemo {
		if err := m.seedDemo(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mailbox) Tools() []contractx.Tool {
	return []contractx.Tool{
		New(&schema.ToolInfo{
			Name: ToolListEmails,
			Desc: "List recent emails in the inbox with id, sender, subject and date.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"limit": {Type: schema.Integer, Desc: "Max emails to return (default 10)."},
			}),
		}, 0, m.listEmails),
		New(&schema.ToolInfo{
			Name: ToolReadEmail,
			Desc: "Read the full contents of an email by its id.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"email_id": {Type: schema.String, Desc: "Id from list_emails.", Required: true},
			}),
		}, 0, m.readEmail),
		New(&schema.ToolInfo{
			Name: ToolDraftReply,
			Desc: "Save a complete email draft as an .eml file. Write the full final body; do not include headers in it.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"to":      {Type: schema.String, Desc: "Recipient name or address.", Required: true},
				"subject": {Type: schema.String, Desc: "Subject line."},
				"body":    {Type: schema.String, Desc: "The complete plain-text email body.", Required: true},
			}),
		}, contractx.CapWrite, m.draftReply),
	}
}

type emailSummary struct {
	ID      string
	From    string
	Subject string
	Date    string
}

func (m *Mailbox) listEmails(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	limit := intArg(args, "limit", defaultEmailLimit)
	if limit <= 0 {
		limit = defaultEmailLimit
	}
	paths, err := filepath.Glob(filepath.Join(m.dir, "*.eml"))
	if err != nil {
		return contractx.ToolResult{}, err
	}
	sort.Strings(paths)
	if len(paths) > limit {
		paths = paths[:limit]
	}
	if len(paths) == 0 {
		return done(ToolListEmails, "The inbox is empty."), nil
	}

	var b strings.Builder
	for _, p := range paths {
		msg, err := readMessage(p)
		if err != nil {
			continue
		}
		s := emailSummary{
			ID:      strings.TrimSuffix(filepath.Base(p), ".eml"),
			From:    decodeHeader(msg.Header.Get("From")),
			Subject: decodeHeader(msg.Header.Get("Subject")),
			Date:    msg.Header.Get("Date"),
		}
		fmt.Fprintf(&b, "- id: %s\n  from: %s\n  subject: %s\n  date: %s\n", s.ID, s.From, s.Subject, s.Date)
	}
	return done(ToolListEmails, strings.TrimRight(b.String(), "\n")), nil
}

func (m *Mailbox) readEmail(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	id, bad := requireString(ToolReadEmail, args, "email_id")
	if bad != nil {
		return *bad, nil
	}
	id = strings.TrimSuffix(filepath.Base(id), ".eml")
	msg, err := readMessage(filepath.Join(m.dir, id+".eml"))
	if errors.Is(err, os.ErrNotExist) {
		return failed(ToolReadEmail, fmt.Sprintf("email %q not found", id)), nil
	}
	if err != nil {
		return contractx.ToolResult{}, err
	}
	body, err := io.ReadAll(io.LimitReader(msg.Body, maxEmailBody))
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("read body: %w", err)
	}
	out := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\nDate: %s\n\n%s",
		decodeHeader(msg.Header.Get("From")),
		decodeHeader(msg.Header.Get("To")),
		decodeHeader(msg.Header.Get("Subject")),
		msg.Header.Get("Date"),
		strings.TrimSpace(strings.ReplaceAll(string(body), "\r\n", "\n")))
	return done(ToolReadEmail, out), nil
}

func (m *Mailbox) draftReply(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	to, bad := requireString(ToolDraftReply, args, "to")
	if bad != nil {
		return *bad, nil
	}
	subject := stringArg(args, "subject")
	body := cleanBody(stringArg(args, "body"), subject)
	if body == "" {
		return failed(ToolDraftReply, "body is required; write the complete email"), nil
	}

	name := fmt.Sprintf("draft_%s_%s.eml", m.now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(m.draftDir, name)
	if err := os.WriteFile(path, []byte(encodeEML(draftSender, to, subject, body, m.now())), 0o644); err != nil {
		return contractx.ToolResult{}, fmt.Errorf("write draft: %w", err)
	}

	label := subject
	if label == "" {
		label = "Email Draft"
	}
	return done(ToolDraftReply,
		fmt.Sprintf("Draft saved for %s with subject %q.\n\n%s", to, subject, body),
		contractx.GeneratedFile{
			Type:   contractx.FileTypeMail,
			Path:   path,
			Label:  label,
			Fields: map[string]string{"to": to, "subject": subject, "body": body},
		}), nil
}

// cleanBody strips markup and a repeated subject line the model tends to add.
func cleanBody(body, subject string) string {
	body = strings.ReplaceAll(body, `\n`, "\n")
	body = htmlTag.ReplaceAllString(body, "")
	body = markdownBold.ReplaceAllString(body, "$1")
	if subject != "" {
		re := regexp.MustCompile(`(?im)^subject\s*:\s*` + regexp.QuoteMeta(subject) + `\s*\n*`)
		body = re.ReplaceAllString(body, "")
	}
	body = manyBlank.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

func encodeEML(from, to, subject, body string, at time.Time) string {
	headers := []string{
		"From: " + formatAddressList(from),
		"To: " + formatAddressList(to),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + at.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"Content-Transfer-Encoding: 8bit",
	}
	text := strings.Join(headers, "\r\n") + "\r\n\r\n" + strings.ReplaceAll(body, "\n", "\r\n") + "\r\n"
	return text
}

// formatAddressList renders an address header. Display names are encoded;
// the addr-spec never is.
func formatAddressList(raw string) string {
	list, err := mail.ParseAddressList(raw)
	if err != nil {
		return (&mail.Address{Address: strings.TrimSpace(raw)}).String()
	}
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func readMessage(path string) (*mail.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	return mail.ReadMessage(strings.NewReader(string(raw)))
}

var headerDecoder = new(mime.WordDecoder)

func decodeHeader(v string) string {
	out, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return out
}

func (m *Mailbox) seedDemo() error {
	path := filepath.Join(m.dir, "sample_investor.eml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	sample := "From: investor@acmecorp.com\n" +
		"To: user@example.com\n" +
		"Subject: Partnership Opportunity with Acme Corp\n" +
		"Date: Mon, 10 Feb 2026 09:00:00 +0000\n" +
		"\n" +
		"Hi,\n\n" +
		"I'm reaching out from Acme Corp regarding a potential partnership.\n" +
		"We recently closed our Series B and are looking to collaborate with\n" +
		"innovative teams in your space.\n\n" +
		"Could we schedule a call this week?\n\n" +
		"Best,\nJane Doe\nVP Partnerships, Acme Corp\n"
	return os.WriteFile(path, []byte(sample), 0o644)
}
