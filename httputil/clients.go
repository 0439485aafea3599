package httputil

import (
	"net/http/cookiejar"

	"github.com/go-resty/resty/v2"

	"inventory_watch/config"
)

type Clients struct {
	Scraping *resty.Client // dealer sites, optionally proxied
	API      *resty.Client // direct, for Twilio and other APIs
}

func NewClients(cfg config.FetchConfig) *Clients {
	scraping := resty.New()
	if jar, err := cookiejar.New(nil); err == nil {
		scraping.SetCookieJar(jar)
	}
	scraping.SetHeader("User-Agent", cfg.UserAgent)
	scraping.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	scraping.SetHeader("Accept-Language", "en-US,en;q=0.9")
	scraping.SetTimeout(cfg.Timeout)
	scraping.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	scraping.SetRetryCount(2)
	if cfg.ProxyURL != "" {
		scraping.SetProxy(cfg.ProxyURL)
	}

	api := resty.New()
	api.SetTimeout(cfg.Timeout)

	return &Clients{
		Scraping: scraping,
		API:      api,
	}
}
