package booking

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source supplies the raw tabular rows of a unit's booking sheet.
type Source interface {
	Fetch(ctx context.Context, fileID string) ([][]string, error)
}

// DriveSourceConfig configures a DriveSource. Zero values fall back to the
// public Google endpoints.
type DriveSourceConfig struct {
	// TokenFile is a Google authorized-user token file. It is rewritten
	// whenever the access token is refreshed, mirroring what the
	// authorization helper produces.
	TokenFile string
	Timeout   time.Duration
	BaseURL   string
	TokenURL  string
}

// DriveSource fetches booking sheets from Google Drive, exported as CSV.
// The OAuth access token is refreshed lazily via the refresh-token grant.
type DriveSource struct {
	cfg        DriveSourceConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	token *driveToken
}

// driveToken mirrors the authorized-user token file layout.
type driveToken struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

// NewDriveSource creates a Drive-backed booking source.
func NewDriveSource(cfg DriveSourceConfig, logger *zap.SugaredLogger) *DriveSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/drive/v3"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://oauth2.googleapis.com/token"
	}

	return &DriveSource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Fetch downloads the sheet with the given Drive file ID and returns its
// rows. Spreadsheet files are exported as CSV; plain CSV files are
// downloaded directly as a fallback.
func (s *DriveSource) Fetch(ctx context.Context, fileID string) ([][]string, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	data, err := s.download(ctx, fileID, token, true)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing sheet %s: %w", fileID, err)
	}

	return rows, nil
}

// download retrieves the file content, first via CSV export, then via plain
// media download when export is not applicable to the file type.
func (s *DriveSource) download(ctx context.Context, fileID, token string, tryExport bool) ([]byte, error) {
	var endpoint string
	if tryExport {
		endpoint = fmt.Sprintf("%s/files/%s/export?mimeType=%s", s.cfg.BaseURL, fileID, url.QueryEscape("text/csv"))
	} else {
		endpoint = fmt.Sprintf("%s/files/%s?alt=media", s.cfg.BaseURL, fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading sheet %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return io.ReadAll(resp.Body)
	}

	body, _ := io.ReadAll(resp.Body)
	// Non-spreadsheet files (a plain CSV upload) reject the export call.
	if tryExport && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden) {
		return s.download(ctx, fileID, token, false)
	}

	return nil, fmt.Errorf("drive API error (status %d): %s", resp.StatusCode, body)
}

// accessToken returns a valid access token, refreshing and persisting the
// token file when the cached token has expired.
func (s *DriveSource) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		data, err := os.ReadFile(s.cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("reading drive token file: %w", err)
		}
		var token driveToken
		if err := json.Unmarshal(data, &token); err != nil {
			return "", fmt.Errorf("parsing drive token file: %w", err)
		}
		s.token = &token
	}

	if s.token.Token != "" && !s.expired() {
		return s.token.Token, nil
	}

	if err := s.refresh(ctx); err != nil {
		return "", err
	}
	return s.token.Token, nil
}

// expired reports whether the cached access token is past (or within a
// minute of) its expiry. A token without an expiry is treated as expired so
// that it gets refreshed before first use.
func (s *DriveSource) expired() bool {
	if s.token.Expiry == "" {
		return true
	}
	expiry, err := time.Parse(time.RFC3339, s.token.Expiry)
	if err != nil {
		return true
	}
	return time.Now().After(expiry.Add(-time.Minute))
}

// refresh exchanges the refresh token for a fresh access token and writes
// the updated token file back, keeping it usable across restarts.
func (s *DriveSource) refresh(ctx context.Context) error {
	if s.token.RefreshToken == "" {
		return fmt.Errorf("drive token file has no refresh_token; re-run authorization")
	}

	tokenURL := s.token.TokenURI
	if tokenURL == "" {
		tokenURL = s.cfg.TokenURL
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.token.RefreshToken},
		"client_id":     {s.token.ClientID},
		"client_secret": {s.token.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refreshing drive token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, body)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("token endpoint returned no access token")
	}

	s.token.Token = result.AccessToken
	s.token.Expiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second).UTC().Format(time.RFC3339)

	if data, err := json.MarshalIndent(s.token, "", "  "); err == nil {
		if err := os.WriteFile(s.cfg.TokenFile, data, 0o600); err != nil {
			s.logger.Warnf("Failed to persist refreshed drive token: %v", err)
		}
	}

	return nil
}
