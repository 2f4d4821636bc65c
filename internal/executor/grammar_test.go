package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Custos/imthedev-sub000/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		command string
		valid   bool
		field   string
	}{
		{"persona and tests", "/sc:implement auth --persona-backend --with-tests", true, ""},
		{"without slash", "sc:build", true, ""},
		{"surrounding whitespace", "  /sc:build --uc  ", true, ""},
		{"parameterized scope", "/sc:analyze . --scope=module", true, ""},
		{"parameterized and boolean", "/sc:analyze --focus=security --think-hard", true, ""},
		{"iterations both forms", "/sc:improve --loop --iterations --iterations=3", true, ""},
		{"mcp flags", "/sc:build --seq --c7 --magic --play --all-mcp", true, ""},
		{"scribe with value", "/sc:document --persona-scribe=es", true, ""},
		{"unknown kind", "/sc:invalid_command", false, "kind"},
		{"kind is case sensitive", "/sc:Analyze", false, "kind"},
		{"kind must be whole word", "/sc:testing", false, "kind"},
		{"missing prefix", "analyze the repo", false, "command"},
		{"empty", "", false, "command"},
		{"unknown flag", "/sc:test --not-a-flag", false, "flag"},
		{"unlisted flag", "/sc:test --comprehensive", false, "flag"},
		{"value on boolean flag", "/sc:implement --persona-backend=x", false, "flag"},
		{"unknown parameterized flag", "/sc:build --target=prod", false, "flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.command)
			assert.Equal(t, tt.valid, IsValid(tt.command))
			if tt.valid {
				assert.NoError(t, err)
				return
			}

			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
}

func TestCommandKind(t *testing.T) {
	assert.Equal(t, "implement", CommandKind("/sc:implement auth"))
	assert.Equal(t, "build", CommandKind("sc:build"))
	assert.Equal(t, "", CommandKind("build"))
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "analyze .", stripPrefix("/sc:analyze ."))
	assert.Equal(t, "build", stripPrefix("sc:build"))
	assert.Equal(t, "help", stripPrefix("  /sc:help "))
}

func TestValidate_AllowListedCommandsAreValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(CommandKinds).Draw(t, "kind")
		flags := rapid.SliceOfN(rapid.SampledFrom(BooleanFlags), 0, 5).Draw(t, "flags")
		params := rapid.SliceOfN(rapid.SampledFrom(ParameterizedFlags), 0, 3).Draw(t, "params")
		value := rapid.StringMatching(`[a-z0-9]{1,8}`).Draw(t, "value")

		parts := []string{"/sc:" + kind}
		parts = append(parts, flags...)
		for _, p := range params {
			parts = append(parts, p+value)
		}
		command := strings.Join(parts, " ")

		if err := Validate(command); err != nil {
			t.Fatalf("expected %q to be valid: %v", command, err)
		}
	})
}

func TestValidate_UnlistedFlagsAreInvalid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(CommandKinds).Draw(t, "kind")
		flag := "--" + rapid.StringMatching(`x[a-z]{2,10}`).Draw(t, "flag")

		command := "/sc:" + kind + " " + flag
		if IsValid(command) {
			t.Fatalf("expected %q to be invalid", command)
		}
	})
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain words", "implement auth --with-tests", []string{"implement", "auth", "--with-tests"}},
		{"collapses whitespace", "  build\t  --uc ", []string{"build", "--uc"}},
		{"double quotes", `implement "user auth" --uc`, []string{"implement", "user auth", "--uc"}},
		{"single quotes keep backslash", `analyze 'a\b'`, []string{"analyze", `a\b`}},
		{"escaped quote", `document "say \"hi\""`, []string{"document", `say "hi"`}},
		{"escaped space", `analyze my\ dir`, []string{"analyze", "my dir"}},
		{"empty quotes", `task ""`, []string{"task", ""}},
		{"adjacent quoting", `task a"b c"d`, []string{"task", "ab cd"}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitArgs(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitArgs_Errors(t *testing.T) {
	for _, input := range []string{`analyze "open`, `analyze 'open`, `analyze trailing\`} {
		_, err := splitArgs(input)
		assert.Error(t, err, input)
	}
}

func TestSuggestFixes(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"valid command", "/sc:implement auth --with-tests", nil},
		{"missing prefix", "implement auth", []string{"/sc:implement auth"}},
		{"missing prefix and bad flag", "implement auth --turbo", []string{"/sc:implement auth"}},
		{"unknown kind", "/sc:deploy prod", []string{"/sc:help"}},
		{"not a command", "rm -rf /", []string{"/sc:help"}},
		{"drops unknown flags", "/sc:build --uc --turbo --think", []string{"/sc:build --uc --think"}},
		{"drops unknown parameter", "/sc:build app --mode=fast", []string{"/sc:build app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestFixes(tt.command)
			assert.Equal(t, tt.want, got)
			for _, fix := range got {
				assert.True(t, IsValid(fix), fix)
			}
		})
	}
}
