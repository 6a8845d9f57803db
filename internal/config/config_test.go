package config_test

import (
	"strings"
	"testing"

	"orgpool/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default("https://hub.example.com", "ci@example.com")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pool.Tag != "ci" || cfg.Pool.ExpiryDays != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg.Pool)
	}
}

func TestFromYAMLValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing instance url",
			yaml: "hub:\n  api_version: \"54.0\"\n  username: u\npool:\n  max: 5\n  expiry_days: 2\n  batch_size: 5\n  definition_file: def.json\n",
			want: "instance_url",
		},
		{
			name: "bad api version",
			yaml: "hub:\n  instance_url: https://h\n  api_version: \"54\"\n  username: u\npool:\n  max: 5\n  expiry_days: 2\n  batch_size: 5\n  definition_file: def.json\n",
			want: "api_version",
		},
		{
			name: "expiry out of range",
			yaml: "hub:\n  instance_url: https://h\n  api_version: \"54.0\"\n  username: u\npool:\n  max: 5\n  expiry_days: 45\n  batch_size: 5\n  definition_file: def.json\n",
			want: "expiry_days",
		},
		{
			name: "batch larger than max",
			yaml: "hub:\n  instance_url: https://h\n  api_version: \"54.0\"\n  username: u\npool:\n  max: 5\n  expiry_days: 2\n  batch_size: 8\n  definition_file: def.json\n",
			want: "batch_size",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}
