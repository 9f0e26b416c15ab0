package testutil

import (
	"sync"

	"s3backup/internal/cipher"
	"s3backup/internal/config"
	"s3backup/internal/sb"
)

// StubPrompter answers Confirm from a fixed map of questions and Browse
// with a fixed selection by member name.
type StubPrompter struct {
	mu        sync.Mutex
	Answers   map[string]bool // question -> answer; missing means no
	Select    []string        // member names returned by Browse
	Abort     bool            // Browse reports quit
	Questions []string        // every question asked, in order
	Browsed   []sb.Member     // members passed to the last Browse
}

func (p *StubPrompter) Confirm(question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Questions = append(p.Questions, question)
	return p.Answers[question], nil
}

func (p *StubPrompter) Browse(members []sb.Member) ([]sb.Member, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Browsed = members
	if p.Abort {
		return nil, false, nil
	}
	var out []sb.Member
	for _, name := range p.Select {
		for _, m := range members {
			if m.Name == name {
				out = append(out, m)
			}
		}
	}
	return out, true, nil
}

var _ sb.Prompter = (*StubPrompter)(nil)

// TestPassphrase is the passphrase used by NewTestCiphers.
const TestPassphrase = "correct horse battery staple"

// NewTestCiphers returns a cipher provider with a fixed passphrase. The
// age work factor is lowered to keep tests fast.
func NewTestCiphers() *cipher.Provider {
	cfg := config.EncryptionConfig{
		Enabled:       true,
		Type:          sb.CipherAESCBC,
		AgeWorkFactor: 10,
	}
	return cipher.NewProvider(cfg, func() (string, error) { return TestPassphrase, nil })
}
