package server

import (
	"encoding/xml"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURLSet struct {
	XMLName   xml.Name     `xml:"urlset"`
	Namespace string       `xml:"xmlns,attr"`
	URLs      []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Location     string `xml:"loc"`
	LastModified string `xml:"lastmod"`
}

// handleSitemap lists every public notebook under /{username}/{slug}.
func (h *httpHandler) handleSitemap(c *gin.Context) {
	entries, err := h.repos.Notebooks.ListForSitemap(c.Request.Context())
	if err != nil {
		h.respondError(c, "sitemap.list", err)
		return
	}

	set := sitemapURLSet{Namespace: sitemapNamespace, URLs: make([]sitemapURL, 0, len(entries))}
	for _, entry := range entries {
		set.URLs = append(set.URLs, sitemapURL{
			Location:     h.siteBaseURL + "/" + url.PathEscape(entry.Username) + "/" + url.PathEscape(entry.Slug),
			LastModified: entry.LastModified.Format("2006-01-02"),
		})
	}

	body, err := xml.Marshal(set)
	if err != nil {
		h.respondError(c, "sitemap.encode", err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), body...))
}
