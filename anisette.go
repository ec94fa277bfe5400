package haystack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MdRinfo = "17106176" // Either 17106176 or 50660608

type AnisetteResponse struct {
	XAppleIClientTime time.Time `json:"X-Apple-I-Client-Time"`
	XAppleIMD         string    `json:"X-Apple-I-MD"`
	XAppleIMDLU       string    `json:"X-Apple-I-MD-LU"`
	XAppleIMDM        string    `json:"X-Apple-I-MD-M"`
	XAppleIMDRINFO    string    `json:"X-Apple-I-MD-RINFO"`
	XAppleISRLNO      string    `json:"X-Apple-I-SRL-NO"`
	XAppleITimeZone   string    `json:"X-Apple-I-TimeZone"`
	XAppleLocale      string    `json:"X-Apple-Locale"`
	XMMeClientInfo    string    `json:"X-MMe-Client-Info"`
	XMmeDeviceId      string    `json:"X-Mme-Device-Id"`
}

// AnisetteProvider pairs a stored search party token with device headers fetched from an
// anisette server. Headers are requested anew for every attempt.
type AnisetteProvider struct {
	auth        *Auth
	anisetteURL string
	httpClient  *http.Client
}

func NewAnisetteProvider(auth *Auth, anisetteURL string) *AnisetteProvider {
	return &AnisetteProvider{
		auth:        auth,
		anisetteURL: anisetteURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *AnisetteProvider) Context(ctx context.Context) (*AuthContext, error) {
	if p.auth == nil || p.auth.SearchPartyToken == "" {
		return nil, fmt.Errorf("%w: search party token not available", ErrAuthUnavailable)
	}
	h, err := p.getAnisetteHeaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to get anisette headers: %v", ErrAuthUnavailable, err)
	}
	return &AuthContext{
		Dsid:             p.auth.Dsid,
		SearchPartyToken: p.auth.SearchPartyToken,
		Headers:          h,
	}, nil
}

var _ AuthProvider = (*AnisetteProvider)(nil)

func (p *AnisetteProvider) getAnisetteHeaders(ctx context.Context) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.anisetteURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	var response AnisetteResponse
	err = json.NewDecoder(res.Body).Decode(&response)
	if err != nil {
		return nil, err
	}
	userId := uuid.NewString()
	userId = strings.ReplaceAll(userId, "-", "")
	userId = strings.ToUpper(userId)

	deviceId := strings.ToUpper(uuid.NewString())

	headers := http.Header{
		"X-Apple-I-MD":          []string{response.XAppleIMD},
		"X-Apple-I-MD-M":        []string{response.XAppleIMDM},
		"X-Apple-I-Client-Time": []string{time.Now().UTC().Format(time.RFC3339)},
		"X-Apple-I-TimeZone":    []string{time.Now().Location().String()},
		"loc":                   []string{"en_US"},
		"X-Apple-Locale":        []string{"en_US"},
		"X-Apple-I-MD-RINFO":    []string{MdRinfo},
		"X-Apple-I-MD-LU":       []string{userId},
		"X-Mme-Device-Id":       []string{deviceId},
		"X-Apple-I-SRL-NO":      []string{"0"},
	}

	return headers, nil
}
