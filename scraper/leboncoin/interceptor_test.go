package leboncoin

import (
	"context"
	"errors"
	"testing"
	"time"
)

const searchURL = "https://api.leboncoin.fr/finder/search"

func TestSearchAPIMatcher(t *testing.T) {
	tests := []struct {
		url    string
		status int64
		want   bool
	}{
		{searchURL, 200, true},
		{searchURL + "?ctx=1", 204, true},
		{searchURL, 403, false},
		{"https://api.leboncoin.fr/api/adfinder/v1/myads", 200, false},
		{"https://www.leboncoin.fr/recherche", 200, false},
	}
	for _, tt := range tests {
		if got := SearchAPIMatcher(tt.url, tt.status); got != tt.want {
			t.Errorf("SearchAPIMatcher(%q, %d): got %v, want %v", tt.url, tt.status, got, tt.want)
		}
	}
}

func TestCollectorFirstPayloadWins(t *testing.T) {
	col := newPayloadCollector(SearchAPIMatcher)
	col.onResponse("telemetry", searchURL, 200)
	col.onResponse("first", searchURL, 200)
	col.onResponse("second", searchURL, 200)
	col.onResponse("other", "https://www.leboncoin.fr/_next/data.json", 200)

	if _, ok := col.take("other"); ok {
		t.Error("non-matching response was recorded")
	}

	if _, ok := col.take("telemetry"); !ok {
		t.Fatal("telemetry response not pending")
	}
	if col.offer([]byte(`{"total": 0, "ads": []}`)) {
		t.Error("empty ads collection accepted")
	}
	if col.offer([]byte(`not json`)) {
		t.Error("undecodable body accepted")
	}

	if _, ok := col.take("first"); !ok {
		t.Fatal("first response not pending")
	}
	if !col.offer([]byte(`{"total": 2, "ads": [{"list_id": 1}, {"list_id": 2}]}`)) {
		t.Fatal("first payload rejected")
	}

	if _, ok := col.take("second"); ok {
		t.Error("pending response still reported after a payload was found")
	}
	if col.offer([]byte(`{"ads": [{"list_id": 3}]}`)) {
		t.Error("second payload accepted")
	}

	p, err := col.wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(p.Ads) != 2 {
		t.Errorf("ads: got %d, want 2", len(p.Ads))
	}
}

func TestCollectorTimeout(t *testing.T) {
	col := newPayloadCollector(SearchAPIMatcher)
	_, err := col.wait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrPayloadTimeout) {
		t.Errorf("got %v, want ErrPayloadTimeout", err)
	}
}

func TestCollectorCancelled(t *testing.T) {
	col := newPayloadCollector(SearchAPIMatcher)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := col.wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

type stubWatch struct {
	payload *SearchPayload
	err     error
	stopped int
}

func (w *stubWatch) Wait(context.Context, time.Duration) (*SearchPayload, error) {
	return w.payload, w.err
}

func (w *stubWatch) Stop() { w.stopped++ }

func TestCapturePayloadStopsWatch(t *testing.T) {
	w := &stubWatch{err: ErrPayloadTimeout}
	boom := errors.New("click failed")
	_, err := CapturePayload(context.Background(),
		func(context.Context) PayloadWatch { return w },
		func(context.Context) error { return boom },
		time.Second)
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want trigger error", err)
	}
	if w.stopped == 0 {
		t.Error("watch not stopped after trigger failure")
	}

	w = &stubWatch{payload: &SearchPayload{Total: 1}}
	p, err := CapturePayload(context.Background(),
		func(context.Context) PayloadWatch { return w },
		func(context.Context) error { return nil },
		time.Second)
	if err != nil || p == nil || p.Total != 1 {
		t.Fatalf("got %+v, %v", p, err)
	}
	if w.stopped == 0 {
		t.Error("watch not stopped after success")
	}
}

func TestExtractInlinePayload(t *testing.T) {
	html := `<html><head></head><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"searchData":{"total":35,"ads":[{"list_id":2871234567,"subject":"Maison 5 pièces"}]}}}}
</script></body></html>`
	p, err := ExtractInlinePayload(html)
	if err != nil {
		t.Fatalf("ExtractInlinePayload: %v", err)
	}
	if p == nil || p.Total != 35 || len(p.Ads) != 1 {
		t.Fatalf("got %+v", p)
	}
	ad, err := DecodeAd(p.Ads[0])
	if err != nil {
		t.Fatalf("DecodeAd: %v", err)
	}
	if ad.ID() != "2871234567" {
		t.Errorf("id: got %q", ad.ID())
	}
}

func TestExtractInlinePayloadAbsent(t *testing.T) {
	cases := map[string]string{
		"no block":    `<html><body><p>accueil</p></body></html>`,
		"no search":   `<html><body><script id="__NEXT_DATA__">{"props":{"pageProps":{}}}</script></body></html>`,
		"empty ads":   `<html><body><script id="__NEXT_DATA__">{"props":{"pageProps":{"searchData":{"ads":[]}}}}</script></body></html>`,
		"blank block": `<html><body><script id="__NEXT_DATA__">  </script></body></html>`,
	}
	for name, html := range cases {
		p, err := ExtractInlinePayload(html)
		if err != nil || p != nil {
			t.Errorf("%s: got %+v, %v; want nil, nil", name, p, err)
		}
	}

	if _, err := ExtractInlinePayload(`<script id="__NEXT_DATA__">{broken</script>`); err == nil {
		t.Error("malformed block: expected error")
	}
}
