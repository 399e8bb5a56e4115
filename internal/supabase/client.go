package supabase

import (
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// NewClient connects to a Supabase project with the service key. Events and artifacts
// are written server-side, so row level security is bypassed.
func NewClient(supabaseURL, serviceKey string) (*supabase.Client, error) {
	client, err := supabase.NewClient(strings.TrimSuffix(supabaseURL, "/"), serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}
