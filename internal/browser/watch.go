package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// DocumentStatus records the HTTP response of the main document load on a
// tab. Only the first document response is kept; subresources are ignored.
type DocumentStatus struct {
	once   sync.Once
	status int
	url    string
}

// WatchDocumentStatus attaches a CDP listener to tabCtx and returns the
// recorder. network.Enable must run on the tab for events to flow.
func WatchDocumentStatus(tabCtx context.Context) *DocumentStatus {
	d := &DocumentStatus{}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		d.once.Do(func() {
			d.status = int(resp.Response.Status)
			d.url = resp.Response.URL
		})
	})
	return d
}

// Status returns the recorded HTTP status, zero when no document loaded.
func (d *DocumentStatus) Status() int {
	if d == nil {
		return 0
	}
	return d.status
}

// FinalURL returns the document URL after redirects, or fallback when no
// document response was observed.
func (d *DocumentStatus) FinalURL(fallback string) string {
	if d == nil || d.url == "" {
		return fallback
	}
	return d.url
}

// ResetProfile returns tasks that wipe cookies and origin storage, giving
// the next navigation an isolated cookie/storage space even though tabs
// share one browser profile.
func ResetProfile() chromedp.Tasks {
	return chromedp.Tasks{
		network.ClearBrowserCookies(),
		storage.ClearDataForOrigin("*", "all"),
	}
}
