package discovery

import "testing"

func TestService_String(t *testing.T) {
	svc := &Service{
		Instance: "fieldsync on studio",
		Hostname: "studio.local.",
		IP:       "192.168.4.16",
		Port:     8080,
		Path:     "/ws",
	}

	expected := "fieldsync on studio (studio.local.) at ws://192.168.4.16:8080/ws"
	if svc.String() != expected {
		t.Errorf("Service.String() = %v, want %v", svc.String(), expected)
	}
}

func TestService_URL(t *testing.T) {
	tests := []struct {
		name     string
		svc      *Service
		expected string
	}{
		{
			name:     "plain",
			svc:      &Service{IP: "192.168.4.16", Port: 8080, Path: "/ws"},
			expected: "ws://192.168.4.16:8080/ws",
		},
		{
			name:     "tls",
			svc:      &Service{IP: "10.0.0.5", Port: 443, Path: "/ws", TLS: true},
			expected: "wss://10.0.0.5:443/ws",
		},
		{
			name:     "missing path uses default",
			svc:      &Service{IP: "10.0.0.5", Port: 8080},
			expected: "ws://10.0.0.5:8080/ws",
		},
		{
			name:     "path without slash",
			svc:      &Service{IP: "10.0.0.5", Port: 8080, Path: "game"},
			expected: "ws://10.0.0.5:8080/game",
		},
		{
			name:     "ipv6",
			svc:      &Service{IP: "fe80::1", Port: 8080, Path: "/ws"},
			expected: "ws://[fe80::1]:8080/ws",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.URL(); got != tt.expected {
				t.Errorf("Service.URL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestService_GetMetadata(t *testing.T) {
	tests := []struct {
		name     string
		svc      *Service
		key      string
		expected string
	}{
		{
			name:     "existing key",
			svc:      &Service{Metadata: map[string]string{"version": "1.2.0"}},
			key:      "version",
			expected: "1.2.0",
		},
		{
			name:     "missing key",
			svc:      &Service{Metadata: map[string]string{"version": "1.2.0"}},
			key:      "tls",
			expected: "",
		},
		{
			name:     "nil metadata",
			svc:      &Service{},
			key:      "path",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.GetMetadata(tt.key); got != tt.expected {
				t.Errorf("GetMetadata(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}
