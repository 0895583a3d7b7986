package fedex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/TrackGate/internal/carriers"
	"github.com/BearBump/TrackGate/internal/carriers/tokens"
	"github.com/BearBump/TrackGate/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://apis.fedex.com"

	// Фиксированный sub-code перевозчика в запросе трекинга.
	carrierCodeFDXE = "FDXE"
)

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpc        *http.Client
	tokens       *tokens.Cache
	now          func() time.Time
}

func New(baseURL, clientID, clientSecret string, now func() time.Time) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if now == nil {
		now = time.Now
	}
	c := &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: now,
	}
	c.tokens = tokens.New(c.exchangeToken, now)
	return c
}

func (c *Client) Carrier() models.Carrier { return models.CarrierFedEx }

type oauthResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// exchangeToken — client-credentials, но в отличие от UPS id/secret идут
// полями формы, не Basic-заголовком.
func (c *Client) exchangeToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(err, "new token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "do token request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", 0, &carriers.AuthError{
			Carrier:    models.CarrierFedEx,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var r oauthResp
	if err := json.Unmarshal(body, &r); err != nil {
		return "", 0, errors.Wrap(err, "decode token response")
	}
	return r.AccessToken, time.Duration(r.ExpiresIn) * time.Second, nil
}

type trackReq struct {
	IncludeDetailedScans bool           `json:"includeDetailedScans"`
	TrackingInfo         []trackingInfo `json:"trackingInfo"`
}

type trackingInfo struct {
	TrackingNumberInfo trackingNumberInfo `json:"trackingNumberInfo"`
}

type trackingNumberInfo struct {
	TrackingNumber string `json:"trackingNumber"`
	CarrierCode    string `json:"carrierCode"`
}

// Форма ответа FedEx Track API (только нужные поля).
type trackResp struct {
	Output struct {
		CompleteTrackResults []struct {
			TrackResults []trackResult `json:"trackResults"`
		} `json:"completeTrackResults"`
	} `json:"output"`
}

type trackResult struct {
	LatestStatusDetail struct {
		Description    string `json:"description"`
		StatusByLocale string `json:"statusByLocale"`
	} `json:"latestStatusDetail"`
	EstimatedDeliveryTimeWindow struct {
		Window struct {
			// FedEx иногда кладёт сюда объект вместо строки — принимаем
			// только строку, остальное считаем отсутствием оценки.
			Ends any `json:"ends"`
		} `json:"window"`
	} `json:"estimatedDeliveryTimeWindow"`
	ScanEvents []struct {
		Date         string `json:"date"`
		ScanLocation struct {
			City                string `json:"city"`
			StateOrProvinceCode string `json:"stateOrProvinceCode"`
		} `json:"scanLocation"`
	} `json:"scanEvents"`
}

func (c *Client) Track(ctx context.Context, trackNumber string) (models.TrackingResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return models.TrackingResult{}, err
	}

	b, err := json.Marshal(trackReq{
		IncludeDetailedScans: true,
		TrackingInfo: []trackingInfo{{
			TrackingNumberInfo: trackingNumberInfo{
				TrackingNumber: trackNumber,
				CarrierCode:    carrierCodeFDXE,
			},
		}},
	})
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/track/v1/trackingnumbers", bytes.NewReader(b))
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-locale", "en_US")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.TrackingResult{}, &carriers.CarrierError{
			Carrier:    models.CarrierFedEx,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var r trackResp
	if err := json.Unmarshal(body, &r); err != nil {
		return models.TrackingResult{}, &carriers.CarrierError{
			Carrier: models.CarrierFedEx,
			Reason:  carriers.ReasonMalformedResponse,
			Body:    err.Error(),
		}
	}

	// В отличие от UPS тут жёстко: без конверта и хотя бы одного
	// scan-события частичный результат не собираем.
	if len(r.Output.CompleteTrackResults) == 0 || len(r.Output.CompleteTrackResults[0].TrackResults) == 0 {
		return models.TrackingResult{}, &carriers.CarrierError{
			Carrier: models.CarrierFedEx,
			Reason:  carriers.ReasonMalformedResponse,
			Body:    "no track results in response",
		}
	}
	tr := r.Output.CompleteTrackResults[0].TrackResults[0]
	if len(tr.ScanEvents) == 0 {
		return models.TrackingResult{}, &carriers.CarrierError{
			Carrier: models.CarrierFedEx,
			Reason:  carriers.ReasonMalformedResponse,
			Body:    "no scan events in response",
		}
	}

	return c.normalize(tr), nil
}

func (c *Client) normalize(tr trackResult) models.TrackingResult {
	status := tr.LatestStatusDetail.Description
	if status == "" {
		status = tr.LatestStatusDetail.StatusByLocale
	}
	if status == "" {
		status = "In transit"
	}

	estimated := models.NotAvailable
	if s, ok := tr.EstimatedDeliveryTimeWindow.Window.Ends.(string); ok && s != "" {
		estimated = s
	}

	scan := tr.ScanEvents[0]
	location := scan.ScanLocation.City
	if scan.ScanLocation.StateOrProvinceCode != "" {
		location += ", " + scan.ScanLocation.StateOrProvinceCode
	}
	if location == "" {
		location = models.NotAvailable
	}

	// Это поле пустым не оставляем, даже если перевозчик не прислал дату.
	latest := scan.Date
	if latest == "" {
		latest = c.now().UTC().Format(time.RFC3339)
	}

	return models.TrackingResult{
		Status:            status,
		EstimatedDelivery: estimated,
		CurrentLocation:   location,
		LatestUpdate:      latest,
	}
}
