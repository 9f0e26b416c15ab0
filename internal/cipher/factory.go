package cipher

import (
	"fmt"
	"sync"

	"s3backup/internal/config"
	"s3backup/internal/sb"
)

// Provider builds ciphers from configuration. The passphrase is requested
// at most once, and only when a cipher is first needed.
type Provider struct {
	cfg        config.EncryptionConfig
	passphrase func() (string, error)

	mu      sync.Mutex
	secret  string
	ciphers map[string]sb.Cipher
}

var _ sb.CipherProvider = (*Provider)(nil)

// NewProvider creates a Provider that obtains the passphrase from
// passphrase on first use.
func NewProvider(cfg config.EncryptionConfig, passphrase func() (string, error)) *Provider {
	return &Provider{
		cfg:        cfg,
		passphrase: passphrase,
		ciphers:    make(map[string]sb.Cipher),
	}
}

// Cipher returns the codec registered under name.
func (p *Provider) Cipher(name string) (sb.Cipher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.ciphers[name]; ok {
		return c, nil
	}
	c, err := p.build(name)
	if err != nil {
		return nil, err
	}
	p.ciphers[name] = c
	return c, nil
}

func (p *Provider) build(name string) (sb.Cipher, error) {
	switch name {
	case sb.CipherAESCBC, "":
		kd, err := ParseKeyDerivation(p.cfg.KeyDerivation)
		if err != nil {
			return nil, err
		}
		iv, err := ParseIV(p.cfg.IV)
		if err != nil {
			return nil, err
		}
		secret, err := p.getPassphrase()
		if err != nil {
			return nil, err
		}
		key, err := DeriveKey(secret, kd, []byte(p.cfg.Salt))
		if err != nil {
			return nil, fmt.Errorf("deriving key: %w", err)
		}
		return NewCBC(key, iv, p.cfg.PieceSize)
	case sb.CipherAge:
		secret, err := p.getPassphrase()
		if err != nil {
			return nil, err
		}
		return NewAge(secret, p.cfg.AgeWorkFactor), nil
	default:
		return nil, fmt.Errorf("unknown cipher: %q", name)
	}
}

func (p *Provider) getPassphrase() (string, error) {
	if p.secret != "" {
		return p.secret, nil
	}
	if p.cfg.Passphrase != "" {
		p.secret = p.cfg.Passphrase
		return p.secret, nil
	}
	if p.passphrase == nil {
		return "", fmt.Errorf("no passphrase available")
	}
	secret, err := p.passphrase()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("empty passphrase")
	}
	p.secret = secret
	return secret, nil
}
