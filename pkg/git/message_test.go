package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name    string
		ctype   string
		scope   string
		subject string
		body    string
		want    string
	}{
		{"scoped", CommitTypeDocs, "01HX", "update", "", "docs(01HX): update\n\n" + Footer},
		{"default type", "", "", "ignore .jot", "", "chore: ignore .jot\n\n" + Footer},
		{"with body", CommitTypeDocs, "a", "create", "  first line\n", "docs(a): create\n\nfirst line\n\n" + Footer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMessage(tt.ctype, tt.scope, tt.subject, tt.body))
		})
	}
}

func TestAppendFooter(t *testing.T) {
	assert.Equal(t, "fix typo\n\n"+Footer, AppendFooter("fix typo\n"))
	already := "fix typo\n\n" + Footer
	assert.Equal(t, already, AppendFooter(already))
}
