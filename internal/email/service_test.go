package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendMentionEmail(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "CodeCollab"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := svc.SendMentionEmail("b@example.com", MentionData{
		AuthorEmail:     "a@example.com",
		SubmissionTitle: "Fix bug",
		Excerpt:         "hey @b@example.com <script>",
	})
	if err != nil {
		t.Fatalf("SendMentionEmail() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected server %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "b@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	for _, want := range []string{
		"From: CodeCollab <noreply@example.com>",
		"a@example.com mentioned you",
		"Fix bug",
		"&lt;script&gt;",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

func TestSendWithoutConfig(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendMentionEmail("b@example.com", MentionData{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendFailureIsWrapped(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com"})
	boom := errors.New("connection refused")
	svc.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	if err := svc.SendHTMLEmail([]string{"b@example.com"}, "s", "t", "<p>h</p>"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}
