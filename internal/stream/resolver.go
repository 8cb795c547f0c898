package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

const (
	itsEndpoint = "https://openapi.its.go.kr:9443/cctvInfo"
	deltaCoord  = 0.01
	distEpsilon = 1e-6
)

// itsRow is one entry of the external catalog's response.data array,
// per spec.md §6 "External catalog API".
type itsRow struct {
	CCTVURL    string `json:"cctvurl"`
	CoordX     string `json:"coordx"`
	CoordY     string `json:"coordy"`
	CCTVName   string `json:"cctvname"`
	CCTVFormat string `json:"cctvformat"`
	CCTVType   string `json:"cctvtype"`
}

type itsResponse struct {
	Response struct {
		Data json.RawMessage `json:"data"`
	} `json:"response"`
}

// Resolver resolves a Stream's coordinate to a current HLS playlist URL
// via the external ITS directory API. Resolution is stateless and
// never cached (spec.md §4.3 and §9's open question).
type Resolver struct {
	apiKey   string
	client   *http.Client
	endpoint string
}

// NewResolver builds a Resolver with the given API key and per-request
// timeout, querying the production ITS endpoint.
func NewResolver(apiKey string, timeout time.Duration) *Resolver {
	return NewResolverWithEndpoint(apiKey, timeout, itsEndpoint)
}

// NewResolverWithEndpoint builds a Resolver against a custom endpoint,
// used by tests to point at an httptest.Server.
func NewResolverWithEndpoint(apiKey string, timeout time.Duration, endpoint string) *Resolver {
	return &Resolver{
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

// ResolveHLS implements the proximity match described in spec.md §4.3:
// query a bounding box of half-width deltaCoord around the stream's
// coordinate, then pick the returned row minimizing squared Euclidean
// distance, rejecting the match if it exceeds distEpsilon.
func (r *Resolver) ResolveHLS(ctx context.Context, s Stream) (string, error) {
	x, y := s.CoordX, s.CoordY

	q := url.Values{}
	q.Set("apiKey", r.apiKey)
	q.Set("type", "ex")
	q.Set("cctvType", "1")
	q.Set("minX", strconv.FormatFloat(x-deltaCoord, 'f', -1, 64))
	q.Set("maxX", strconv.FormatFloat(x+deltaCoord, 'f', -1, 64))
	q.Set("minY", strconv.FormatFloat(y-deltaCoord, 'f', -1, 64))
	q.Set("maxY", strconv.FormatFloat(y+deltaCoord, 'f', -1, 64))
	q.Set("getType", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", taskmodel.NewExternal("failed to build ITS request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", taskmodel.NewExternal("ITS catalog API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", taskmodel.NewExternal(fmt.Sprintf("ITS catalog API returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", taskmodel.NewExternal("failed to read ITS catalog API response", err)
	}

	var parsed itsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", taskmodel.NewExternal("failed to parse ITS catalog API response", err)
	}

	rows, err := decodeRows(parsed.Response.Data)
	if err != nil {
		return "", taskmodel.NewExternal("failed to parse ITS catalog API response rows", err)
	}

	minDist := -1.0
	var best *itsRow
	for i := range rows {
		row := &rows[i]
		cx, errX := strconv.ParseFloat(row.CoordX, 64)
		cy, errY := strconv.ParseFloat(row.CoordY, 64)
		if errX != nil || errY != nil {
			continue
		}
		dist := (x-cx)*(x-cx) + (y-cy)*(y-cy)
		if minDist < 0 || dist < minDist {
			minDist = dist
			best = row
		}
	}

	if best == nil || minDist > distEpsilon {
		return "", taskmodel.NewNotFound("hls address", s.Name)
	}

	if err := validateURLChars(best.CCTVURL); err != nil {
		return "", taskmodel.NewExternal("resolved HLS URL failed validation", err)
	}

	return best.CCTVURL, nil
}

// decodeRows normalizes the case where the API returns a single object
// instead of an array (spec.md §4.3 step 2).
func decodeRows(raw json.RawMessage) ([]itsRow, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var rows []itsRow
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}

	var single itsRow
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []itsRow{single}, nil
}

// validateURLChars rejects shell-metacharacter-bearing URLs before they
// are ever interpolated into the ffmpeg argument vector. exec.Command
// never invokes a shell, so this is defense in depth, not a shell
// injection fix; it is the same character class
// cxumol-FFwebAPI/ffmpeg.SanitizeAndValidateArgs rejects, and shlex is
// used the same way the teacher uses it: to tokenize first so a
// quoted/escaped benign character doesn't trip the blacklist.
func validateURLChars(raw string) error {
	tokens, err := shlex.Split(raw)
	if err != nil {
		return fmt.Errorf("could not tokenize resolved URL: %w", err)
	}
	joined := strings.Join(tokens, "")
	if strings.ContainsAny(joined, "|&;`$()<>") {
		return fmt.Errorf("disallowed character in resolved stream URL")
	}
	return nil
}
