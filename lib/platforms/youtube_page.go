package platforms

import (
	"context"
	"net/http"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/carlmjohnson/requests"
	"github.com/fiffu/streamwatch/lib/models"
	"golang.org/x/net/html"
)

// resolveFromPage reads the channel id off the public channel page. Used for
// handles the Data API does not know about yet.
func (yt *YouTube) resolveFromPage(ctx context.Context, path string) (*models.Channel, error) {
	var body string
	err := requests.URL(yt.siteURL).
		Path(path).
		Transport(yt.transport).
		ToString(&body).
		Fetch(ctx)
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	id := channelIDFromPage(doc)
	if id == "" {
		return nil, ErrChannelNotFound
	}
	name := metaContent(doc, "//meta[@property = 'og:title']")
	if name == "" {
		name = id
	}
	return &models.Channel{Platform: models.YouTube, ID: id, Name: name, DisplayName: name}, nil
}

func channelIDFromPage(n *html.Node) string {
	candidates := []string{
		attrValue(htmlquery.FindOne(n, "//link[@rel = 'canonical']"), "href"),
		metaContent(n, "//meta[@property = 'og:url']"),
	}
	for _, c := range candidates {
		if i := strings.Index(c, "/channel/"); i >= 0 {
			id := strings.SplitN(c[i+len("/channel/"):], "/", 2)[0]
			if isChannelID(id) {
				return id
			}
		}
	}
	if id := metaContent(n, "//meta[@itemprop = 'channelId']"); isChannelID(id) {
		return id
	}
	return ""
}

func metaContent(n *html.Node, xpath string) string {
	return attrValue(htmlquery.FindOne(n, xpath), "content")
}

func attrValue(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
