// Package toutiao crawls Toutiao and Xigua video pages.
package toutiao

import (
	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/fetcher/headless"
	"github.com/JakeFAU/creative-collector/internal/platform/pagecrawl"
	"github.com/JakeFAU/creative-collector/internal/selector"
)

// Profile returns the Toutiao selector tables and validation rules.
func Profile() pagecrawl.Profile {
	return pagecrawl.Profile{
		Platform: crawler.PlatformToutiao,
		Hosts:    []string{"toutiao.com", "ixigua.com"},
		Brand:    "头条",
		Referer:  "https://www.toutiao.com/",
		Tables: pagecrawl.Tables{
			Title: selector.NewTable("title", ".article-title", "h1", ".title", ".video-title"),
			Tags:  selector.NewTable("tags", ".tags", ".tag", ".keywords", "a[href*='/tag/']"),
			Video: selector.Table{Target: "video", Candidates: []selector.Candidate{
				{Selector: "video source", Attr: "src", AllowHidden: true},
				{Selector: "video", Attr: "src", AllowHidden: true},
				{Selector: ".video-player video", Attr: "src", AllowHidden: true},
			}},
			Cover: selector.Table{Target: "cover", Candidates: []selector.Candidate{
				{Selector: ".video-cover img", Attr: "src"},
				{Selector: "img[class*='cover']", Attr: "src"},
				{Selector: "meta[property='og:image']", Attr: "content", AllowHidden: true},
				{Selector: ".article-cover img", Attr: "src"},
			}},
			Subtitle: selector.NewTable("subtitle", ".subtitle", ".captions", ".video-subtitle"),
		},
	}
}

// New builds the Toutiao crawler.
func New(opener headless.Opener, covers pagecrawl.CoverResolver, opts ...pagecrawl.Option) *pagecrawl.Crawler {
	return pagecrawl.New(Profile(), opener, covers, opts...)
}
