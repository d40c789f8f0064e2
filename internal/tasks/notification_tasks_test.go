package tasks

import (
	"testing"
)

func TestReplacePlaceholders(t *testing.T) {
	user := NotificationUser{
		Username:    "Rafi",
		Email:       "rafi@example.com",
		PaymentLink: "https://pay.example.com/abc",
	}
	args := SendNotificationArgs{
		Subject:     "Session reminder",
		CourseTitle: "HSC Physics",
		SessionDate: "2026-09-07",
		SessionTime: "18:00",
		AmountTk:    450,
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "session reminder",
			template: "Hi $name, your $course_title session is on $session_date at $session_time.",
			expected: "Hi Rafi, your HSC Physics session is on 2026-09-07 at 18:00.",
		},
		{
			name:     "payment nudge",
			template: "$name, Tk $amount is due for $course_title. Pay here: $paymentlink",
			expected: "Rafi, Tk 450 is due for HSC Physics. Pay here: https://pay.example.com/abc",
		},
		{
			name:     "no placeholders",
			template: "plain text stays untouched",
			expected: "plain text stays untouched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := replacePlaceholders(tt.template, user, args)
			if got != tt.expected {
				t.Errorf("replacePlaceholders(%q) = %q; want %q", tt.template, got, tt.expected)
			}
		})
	}
}
