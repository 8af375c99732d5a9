// Package douyin crawls Douyin video pages.
package douyin

import (
	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/fetcher/headless"
	"github.com/JakeFAU/creative-collector/internal/platform/pagecrawl"
	"github.com/JakeFAU/creative-collector/internal/selector"
)

// Profile returns the Douyin selector tables and validation rules.
func Profile() pagecrawl.Profile {
	return pagecrawl.Profile{
		Platform: crawler.PlatformDouyin,
		Hosts:    []string{"douyin.com", "iesdouyin.com"},
		Brand:    "抖音",
		Referer:  "https://www.douyin.com/",
		Tables: pagecrawl.Tables{
			Title: selector.Table{Target: "title", Candidates: []selector.Candidate{
				{Selector: "[data-e2e='detail-video-info'] h1"},
				{Selector: "[data-e2e='video-desc']"},
				{Selector: "h1"},
				{Selector: ".video-info-detail .title"},
				{Selector: "meta[property='og:title']", Attr: "content", AllowHidden: true},
			}},
			Tags: selector.NewTable("tags",
				"[data-e2e='video-desc'] a[href*='/search/']",
				"a[href*='/hashtag/']",
				".hashtag",
				".tag",
			),
			Video: selector.Table{Target: "video", Candidates: []selector.Candidate{
				{Selector: "video source", Attr: "src", AllowHidden: true},
				{Selector: "xg-video-container video", Attr: "src", AllowHidden: true},
				{Selector: "video", Attr: "src", AllowHidden: true},
			}},
			Cover: selector.Table{Target: "cover", Candidates: []selector.Candidate{
				{Selector: "meta[property='og:image']", Attr: "content", AllowHidden: true},
				{Selector: "xg-poster img", Attr: "src"},
				{Selector: "img[class*='cover']", Attr: "src"},
				{Selector: "video", Attr: "poster", AllowHidden: true},
			}},
			Subtitle: selector.NewTable("subtitle", ".subtitle", ".captions", "xg-text-track"),
		},
	}
}

// New builds the Douyin crawler.
func New(opener headless.Opener, covers pagecrawl.CoverResolver, opts ...pagecrawl.Option) *pagecrawl.Crawler {
	return pagecrawl.New(Profile(), opener, covers, opts...)
}
