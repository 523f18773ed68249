package config

import "testing"

func validConfig() Config {
	return Config{
		NumLayers:        4,
		NumHeads:         8,
		HeadDim:          64,
		TokensPerPage:    16,
		ArenaBytes:       2 << 30,
		MaxContextTokens: 2048,
		NumSequences:     128,
		NumGroups:        4,
		MaxPromptExtra:   256,
		MinGenTokens:     128,
		MaxGenTokens:     1024,
	}
}

func TestBytesPerToken(t *testing.T) {
	c := Config{NumLayers: 4, NumHeads: 8, HeadDim: 64}
	if got, want := c.BytesPerToken(), int64(4*8*64*2*2); got != want {
		t.Fatalf("BytesPerToken() = %d, want %d", got, want)
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsArenaSmallerThanOnePage(t *testing.T) {
	c := validConfig()
	c.ArenaBytes = c.PageBytes() - 1
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() should reject an arena smaller than one page")
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.NumLayers = 0 },
		func(c *Config) { c.NumHeads = 0 },
		func(c *Config) { c.HeadDim = 0 },
		func(c *Config) { c.TokensPerPage = 0 },
		func(c *Config) { c.MaxContextTokens = 0 },
		func(c *Config) { c.NumSequences = 0 },
		func(c *Config) { c.NumGroups = -1 },
		func(c *Config) { c.MaxPromptExtra = -1 },
		func(c *Config) { c.MinGenTokens = -1 },
	}
	for i, mutate := range cases {
		c := validConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: Validate() should have rejected %+v", i, c)
		}
	}
}
