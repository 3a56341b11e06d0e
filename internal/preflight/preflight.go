package preflight

import (
	"context"
	"net/url"
	"strconv"

	"streamkeep/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Recordings directory", cfg.Paths.RecordingsDir),
		CheckDirectoryAccess("Segments directory", cfg.Paths.SegmentsDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Path
			if status.Version != "" {
				result.Detail = status.Version
			}
		}
		results = append(results, result)
	}

	if cfg.Replication.FTP.Enabled {
		results = append(results, CheckTCP(ctx, "FTP target", cfg.Replication.FTP.Host, cfg.Replication.FTP.Port, cfg.Replication.FTP.Timeout))
	}
	if cfg.Replication.SMB.Enabled {
		results = append(results, CheckTCP(ctx, "SMB target", cfg.Replication.SMB.Host, cfg.Replication.SMB.Port, cfg.Replication.SMB.Timeout))
	}
	if s3 := cfg.Replication.S3; s3.Enabled && s3.Endpoint != "" {
		host, port := endpointHostPort(s3.Endpoint)
		results = append(results, CheckTCP(ctx, "S3 target", host, port, s3.Timeout))
	}
	return results
}

// endpointHostPort splits an S3 endpoint URL, defaulting the port from the
// scheme. A bare host is treated as https.
func endpointHostPort(endpoint string) (string, int) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + endpoint)
		if err != nil {
			return "", 0
		}
	}
	if p := u.Port(); p != "" {
		port, _ := strconv.Atoi(p)
		return u.Hostname(), port
	}
	if u.Scheme == "http" {
		return u.Hostname(), 80
	}
	return u.Hostname(), 443
}

// Failed returns only the failing results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
