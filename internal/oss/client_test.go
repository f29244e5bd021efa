package oss

import (
	"strings"
	"testing"

	"campus-assist/internal/models"
)

func TestNormalizeOSSEndpoint(t *testing.T) {
	cases := []struct {
		name       string
		endpoint   string
		disableSSL bool
		want       string
		wantErr    bool
	}{
		{
			name:     "already has scheme",
			endpoint: "https://oss-cn-hangzhou.aliyuncs.com",
			want:     "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "bare host gets https",
			endpoint: "oss-cn-hangzhou.aliyuncs.com",
			want:     "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:       "bare host with ssl disabled",
			endpoint:   "oss-cn-hangzhou.aliyuncs.com",
			disableSSL: true,
			want:       "http://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "trailing slash trimmed",
			endpoint: "oss-cn-hangzhou.aliyuncs.com/",
			want:     "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "empty endpoint",
			endpoint: "   ",
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeOSSEndpoint(tc.endpoint, tc.disableSSL)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBuildObjectKey(t *testing.T) {
	client := &Client{hostName: "assist-node-1"}
	key := client.buildObjectKey("/var/docs/fee-notice.pdf")
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		t.Fatalf("expected host/date/file key, got %s", key)
	}
	if parts[0] != "assist-node-1" {
		t.Fatalf("expected host prefix, got %s", parts[0])
	}
	if parts[2] != "fee-notice.pdf" {
		t.Fatalf("expected base file name, got %s", parts[2])
	}
}

func TestBuildObjectKeyEmptyHostFallback(t *testing.T) {
	client := &Client{hostName: "  /  "}
	key := client.buildObjectKey("notice.txt")
	if !strings.HasPrefix(key, "unknown-host/") {
		t.Fatalf("expected unknown-host prefix, got %s", key)
	}
}

func TestBuildDownloadURL(t *testing.T) {
	client := &Client{
		config: &models.Config{
			Bucket:   "campus-docs",
			Endpoint: "https://oss-cn-hangzhou.aliyuncs.com",
		},
	}
	got := client.buildDownloadURL("host/2026-01-02/notice.pdf")
	want := "https://campus-docs.oss-cn-hangzhou.aliyuncs.com/host/2026-01-02/notice.pdf"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBuildDownloadURLWithoutSSL(t *testing.T) {
	client := &Client{
		config: &models.Config{
			Bucket:     "campus-docs",
			Endpoint:   "oss-cn-hangzhou.aliyuncs.com",
			DisableSSL: true,
		},
	}
	got := client.buildDownloadURL("k")
	if !strings.HasPrefix(got, "http://campus-docs.oss-cn-hangzhou.aliyuncs.com/") {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestNormalizeHostName(t *testing.T) {
	got := normalizeHostName()
	if got == "" {
		t.Fatal("host name should never be empty")
	}
	if strings.ContainsAny(got, "/\\") {
		t.Fatalf("host name should not contain path separators: %s", got)
	}
}
