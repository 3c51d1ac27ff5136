package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

const countryCacheTTL = time.Hour

// CountryCache keeps resolved IP countries
type CountryCache interface {
	GetCountry(ctx context.Context, ip string) (string, bool, error)
	SetCountry(ctx context.Context, ip, country string, ttl time.Duration) error
}

// CountryResolver maps an IP address to an ISO country code
type CountryResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// IPInfoResolver resolves countries with the ipinfo.io API
type IPInfoResolver struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewIPInfoResolver creates an ipinfo.io resolver
func NewIPInfoResolver(baseURL, token string, httpClient *http.Client) *IPInfoResolver {
	if baseURL == "" {
		baseURL = "https://ipinfo.io"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Second}
	}
	return &IPInfoResolver{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// Country implements CountryResolver
func (r *IPInfoResolver) Country(ctx context.Context, ip string) (string, error) {
	if r.token == "" {
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/%s/json?token=%s", r.baseURL, url.PathEscape(ip), url.QueryEscape(r.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipinfo returned status %d", resp.StatusCode)
	}

	var body struct {
		Country string `json:"country"`
		Error   *struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode ipinfo response: %w", err)
	}
	if body.Error != nil {
		return "", fmt.Errorf("ipinfo error: %s", body.Error.Message)
	}
	return strings.ToUpper(body.Country), nil
}

// GeoBlocker refuses requests from blocked countries
type GeoBlocker struct {
	resolver CountryResolver
	cache    CountryCache
	blocked  BlockedCountryStore
	fallback string
	logger   *zap.Logger
}

// NewGeoBlocker creates a geo blocker. fallback is used for local addresses and failed lookups;
// an empty fallback lets those requests through.
func NewGeoBlocker(resolver CountryResolver, cache CountryCache, blocked BlockedCountryStore, fallback string) *GeoBlocker {
	return &GeoBlocker{
		resolver: resolver,
		cache:    cache,
		blocked:  blocked,
		fallback: strings.ToUpper(strings.TrimSpace(fallback)),
		logger:   util.GetLogger(),
	}
}

// Check returns the client's country and whether it is blocked
func (g *GeoBlocker) Check(ctx context.Context, ip string) (string, bool, error) {
	country := g.CountryOf(ctx, ip)
	if country == "" {
		return "", false, nil
	}

	blocked, err := g.blocked.IsCountryBlocked(ctx, country)
	if err != nil {
		return country, false, fmt.Errorf("failed to check blocked countries: %w", err)
	}
	if blocked {
		util.GeoBlockedTotal.WithLabelValues(country).Inc()
	}
	return country, blocked, nil
}

// CountryOf resolves the country for ip, using the cache first
func (g *GeoBlocker) CountryOf(ctx context.Context, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "0.0.0.0" || ip == "127.0.0.1" || ip == "::1" {
		return g.fallback
	}

	if g.cache != nil {
		country, ok, err := g.cache.GetCountry(ctx, ip)
		if err != nil {
			g.logger.Warn("Country cache unavailable", zap.Error(err))
		} else if ok {
			return country
		}
	}

	country, err := g.resolver.Country(ctx, ip)
	if err != nil {
		g.logger.Warn("Failed to resolve country", zap.String("ip", ip), zap.Error(err))
		return g.fallback
	}
	if country == "" {
		return g.fallback
	}

	if g.cache != nil {
		if err := g.cache.SetCountry(ctx, ip, country, countryCacheTTL); err != nil {
			g.logger.Warn("Failed to cache country", zap.Error(err))
		}
	}
	return country
}
