package crawl

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/trendline/hotarchive/internal/trend"
)

// flexString tolerates the search endpoint emitting identifiers as
// either JSON strings or bare numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type indexResponse struct {
	OK   int       `json:"ok"`
	Data indexData `json:"data"`
}

type indexData struct {
	Cards        []indexCard  `json:"cards"`
	CardlistInfo cardlistInfo `json:"cardlistInfo"`
}

type cardlistInfo struct {
	Page *int `json:"page"`
}

type indexCard struct {
	CardType int    `json:"card_type"`
	Mblog    *mblog `json:"mblog"`
}

type mblogUser struct {
	ID         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
	Verified   bool   `json:"verified"`
}

type mblogPic struct {
	URL   string `json:"url"`
	Large *struct {
		URL string `json:"url"`
	} `json:"large"`
}

type picInfo struct {
	URL      string `json:"url"`
	Original string `json:"original"`
	Large    *struct {
		URL string `json:"url"`
	} `json:"large"`
}

type mediaInfo struct {
	StreamURLHD string            `json:"stream_url_hd"`
	StreamURL   string            `json:"stream_url"`
	H265MP4HD   string            `json:"h265_mp4_hd"`
	H265MP4LD   string            `json:"h265_mp4_ld"`
	Duration    float64           `json:"duration"`
	URLs        map[string]string `json:"urls"`
}

type pageInfo struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	PageTitle string `json:"page_title"`
	PagePic   *struct {
		URL string `json:"url"`
	} `json:"page_pic"`
	MediaInfo *mediaInfo `json:"media_info"`
}

type mblog struct {
	ID             flexString         `json:"id"`
	Mid            flexString         `json:"mid"`
	Bid            string             `json:"bid"`
	CreatedAt      string             `json:"created_at"`
	Text           string             `json:"text"`
	RawText        string             `json:"raw_text"`
	User           *mblogUser         `json:"user"`
	RegionName     string             `json:"region_name"`
	Source         string             `json:"source"`
	RepostsCount   int64              `json:"reposts_count"`
	CommentsCount  int64              `json:"comments_count"`
	AttitudesCount int64              `json:"attitudes_count"`
	Pics           []mblogPic         `json:"pics"`
	PicIDs         []string           `json:"pic_ids"`
	PicInfos       map[string]picInfo `json:"pic_infos"`
	PageInfo       *pageInfo          `json:"page_info"`
}

func (m *mblog) postID() string {
	if m.ID != "" {
		return string(m.ID)
	}
	return string(m.Mid)
}

func (m *mblog) pics() []string {
	var urls []string
	switch {
	case len(m.Pics) > 0:
		for _, pic := range m.Pics {
			url := pic.URL
			if pic.Large != nil && pic.Large.URL != "" {
				url = pic.Large.URL
			}
			if url != "" {
				urls = append(urls, url)
			}
		}
	case len(m.PicIDs) > 0 && len(m.PicInfos) > 0:
		for _, pid := range m.PicIDs {
			info, ok := m.PicInfos[pid]
			if !ok {
				continue
			}
			url := ""
			if info.Large != nil {
				url = info.Large.URL
			}
			if url == "" {
				url = info.Original
			}
			if url == "" {
				url = info.URL
			}
			if url != "" {
				urls = append(urls, url)
			}
		}
	}
	return urls
}

func (m *mblog) video() *trend.VideoRef {
	page := m.PageInfo
	if page == nil || (page.Type != "video" && page.Type != "live") {
		return nil
	}
	media := page.MediaInfo
	if media == nil {
		media = &mediaInfo{}
	}
	streams := make(map[string]string)
	for key, url := range map[string]string{
		"hd":     media.StreamURLHD,
		"url":    media.StreamURL,
		"mp4_hd": media.H265MP4HD,
		"mp4_ld": media.H265MP4LD,
	} {
		if url != "" {
			streams[key] = url
		}
	}
	for key, url := range media.URLs {
		streams[key] = url
	}
	if len(streams) == 0 {
		streams = nil
	}
	title := page.PageTitle
	if title == "" {
		title = page.Title
	}
	cover := ""
	if page.PagePic != nil {
		cover = page.PagePic.URL
	}
	return &trend.VideoRef{
		Title:    title,
		Cover:    cover,
		Duration: media.Duration,
		Streams:  streams,
	}
}

// matchTexts returns every text field checked for term presence.
func (m *mblog) matchTexts() []string {
	texts := []string{m.Text, m.RawText}
	if m.PageInfo != nil {
		texts = append(texts, m.PageInfo.Title, m.PageInfo.PageTitle)
	}
	return texts
}

// normalize converts a raw status into the persisted post shape.
func (m *mblog) normalize() trend.PostItem {
	item := trend.PostItem{
		ID:        m.postID(),
		BID:       m.Bid,
		CreatedAt: ParseCreatedAt(m.CreatedAt),
		Region:    m.RegionName,
		Source:    m.Source,
		Text:      CleanHTML(m.Text),
		TextRaw:   m.Text,
		Reposts:   m.RepostsCount,
		Comments:  m.CommentsCount,
		Likes:     m.AttitudesCount,
		Pics:      m.pics(),
		Video:     m.video(),
	}
	if m.Bid != "" {
		item.URL = "https://m.weibo.cn/status/" + m.Bid
	}
	if m.User != nil {
		item.UserID = m.User.ID
		item.UserName = m.User.ScreenName
		item.Verified = m.User.Verified
	}
	return item
}
