package leboncoin

import "strconv"

const (
	homeURL       = "https://www.leboncoin.fr/"
	searchPath    = "/recherche"
	searchAPIPath = "api.leboncoin.fr/finder/search"

	locationsAnchor = `a[title="Locations"][href="/c/locations"]`
	cookieAcceptCSS = `#didomi-notice-agree-button`
	cookieAcceptXP  = `//button[contains(normalize-space(.), "Accepter")]`
	filtersButton   = `button[title="Afficher tous les filtres"]`
	houseCheckbox   = `button[role="checkbox"][value="1"]`
	flatCheckbox    = `button[role="checkbox"][value="2"]`
	proCheckbox     = `button[role="checkbox"][value="pro"]`
	searchButton    = `button[aria-label="Rechercher"]`
	challengeIframe = `iframe[title="DataDome CAPTCHA"]`
	unavailablePage = `span[jsselect="heading"]`
	nextPageControl = `a[data-spark-component="pagination-next-trigger"]`
	inlineDataID    = "__NEXT_DATA__"
)

func pageControl(page int) string {
	return `a[data-spark-component="pagination-item"][data-index="` + strconv.Itoa(page) + `"]`
}
