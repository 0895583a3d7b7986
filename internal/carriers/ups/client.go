package ups

import (
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

const defaultBaseURL = "https://onlinetools.ups.com"

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpc        *http.Client
	tokens       *tokens.Cache
}

// New создаёт UPS-адаптер. now прокидывается в кэш токенов (nil -> time.Now).
func New(baseURL, clientID, clientSecret string, now func() time.Time) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	c.tokens = tokens.New(c.exchangeToken, now)
	return c
}

func (c *Client) Carrier() models.Carrier { return models.CarrierUPS }

type oauthResp struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"` // UPS отдаёт строкой
}

// exchangeToken — client-credentials через HTTP Basic (id:secret в заголовке,
// grant_type в форме).
func (c *Client) exchangeToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/security/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(err, "new token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "do token request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", 0, &carriers.AuthError{
			Carrier:    models.CarrierUPS,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var r oauthResp
	if err := json.Unmarshal(body, &r); err != nil {
		return "", 0, errors.Wrap(err, "decode token response")
	}
	secs, err := r.ExpiresIn.Int64()
	if err != nil {
		return "", 0, errors.Wrap(err, "parse expires_in")
	}
	return r.AccessToken, time.Duration(secs) * time.Second, nil
}

// Форма ответа UPS Track API (только нужные нам поля).
type trackResp struct {
	TrackResponse struct {
		Shipment []struct {
			Package []upsPackage `json:"package"`
		} `json:"shipment"`
	} `json:"trackResponse"`
}

type upsPackage struct {
	Activity []struct {
		Date     string `json:"date"`
		Time     string `json:"time"`
		Location struct {
			Address struct {
				City          string `json:"city"`
				StateProvince string `json:"stateProvince"`
			} `json:"address"`
		} `json:"location"`
	} `json:"activity"`
	CurrentStatus struct {
		Description string `json:"description"`
	} `json:"currentStatus"`
	DeliveryDate []struct {
		Date string `json:"date"`
	} `json:"deliveryDate"`
}

func (c *Client) Track(ctx context.Context, trackNumber string) (models.TrackingResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return models.TrackingResult{}, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/track/v1/details/" + url.PathEscape(trackNumber)

	// Подписи/milestones/POD не запрашиваем — держим payload маленьким.
	q := u.Query()
	q.Set("locale", "en_US")
	q.Set("returnSignature", "false")
	q.Set("returnMilestones", "false")
	q.Set("returnPOD", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("transId", trackNumber)
	req.Header.Set("transactionSrc", "trackgate")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.TrackingResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.TrackingResult{}, &carriers.CarrierError{
			Carrier:    models.CarrierUPS,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var r trackResp
	if err := json.Unmarshal(body, &r); err != nil {
		return models.TrackingResult{}, &carriers.CarrierError{
			Carrier: models.CarrierUPS,
			Reason:  carriers.ReasonMalformedResponse,
			Body:    err.Error(),
		}
	}

	return normalize(r), nil
}

// normalize вытаскивает первый package первого shipment. Все поля
// опциональные: вместо отсутствующих подставляем sentinel-значения, ошибкой
// это не считается.
func normalize(r trackResp) models.TrackingResult {
	out := models.TrackingResult{
		Status:            models.StatusUnknown,
		EstimatedDelivery: models.NotAvailable,
		CurrentLocation:   models.NotAvailable,
		LatestUpdate:      models.NotAvailable,
	}

	if len(r.TrackResponse.Shipment) == 0 || len(r.TrackResponse.Shipment[0].Package) == 0 {
		return out
	}
	pkg := r.TrackResponse.Shipment[0].Package[0]

	if pkg.CurrentStatus.Description != "" {
		out.Status = pkg.CurrentStatus.Description
	}
	if len(pkg.DeliveryDate) > 0 && pkg.DeliveryDate[0].Date != "" {
		out.EstimatedDelivery = carriers.FormatDateTime(pkg.DeliveryDate[0].Date, "")
	}
	if len(pkg.Activity) > 0 {
		act := pkg.Activity[0]
		if loc := joinLocation(act.Location.Address.City, act.Location.Address.StateProvince); loc != "" {
			out.CurrentLocation = loc
		}
		if act.Date != "" {
			out.LatestUpdate = carriers.FormatDateTime(act.Date, act.Time)
		}
	}
	return out
}

func joinLocation(city, state string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{strings.TrimSpace(city), strings.TrimSpace(state)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
