package health

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecChecker(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tests := []struct {
		name     string
		command  []string
		healthy  bool
		contains string
	}{
		{name: "success", command: []string{"sh", "-c", "echo Chassis Power Control: Down/Off"}, healthy: true, contains: "Down/Off"},
		{name: "failure", command: []string{"sh", "-c", "echo unreachable >&2; exit 1"}, healthy: false, contains: "unreachable"},
		{name: "empty", command: nil, healthy: false, contains: "no command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewExecChecker(tt.command).Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			assert.Contains(t, result.Message, tt.contains)
		})
	}
}

func TestExecChecker_Timeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	result := NewExecChecker([]string{"sleep", "5"}).WithTimeout(50 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Less(t, result.Duration, 2*time.Second)
}

func TestExecChecker_Env(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	result := NewExecChecker([]string{"sh", "-c", `test "$IPMI_PASSWORD" = s3cret && echo ok`}).
		WithEnv("IPMI_PASSWORD=s3cret").
		Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.NotContains(t, result.Message, "s3cret")
}
