package xiaohongshu

import "github.com/JakeFAU/creative-collector/internal/selector"

// Scope keys selector overrides for this flow.
const Scope = "xiaohongshu"

// Creator-center locations.
const (
	UploadURL  = "https://creator.xiaohongshu.com/publish/publish?from=homepage&target=video"
	SuccessURL = "creator.xiaohongshu.com/publish/success"
)

// Tables holds every candidate list the flow resolves.
type Tables struct {
	LoginPrompt       selector.Table
	TourContainer     selector.Table
	TourButton        selector.Table
	FileInput         selector.Table
	UploadSuccess     selector.Table
	UploadError       selector.Table
	UploadRetryInput  selector.Table
	Title             selector.Table
	TitleFallback     selector.Table
	Content           selector.Table
	Suggestion        selector.Table
	Topic             selector.Table
	ThumbnailOpen     selector.Table
	ThumbnailModal    selector.Table
	ThumbnailVertical selector.Table
	ThumbnailInput    selector.Table
	ThumbnailDone     selector.Table
	ScheduleToggle    selector.Table
	ScheduleInput     selector.Table
	PublishButton     selector.Table
	ScheduleButton    selector.Table
	FailureMarker     selector.Table
}

func hidden(target string, sels ...string) selector.Table {
	t := selector.Table{Target: target}
	for _, s := range sels {
		t.Candidates = append(t.Candidates, selector.Candidate{Selector: s, AllowHidden: true})
	}
	return t
}

// DefaultTables returns the built-in candidates, most specific first.
func DefaultTables() Tables {
	return Tables{
		LoginPrompt: selector.NewTable("login_prompt", "text=手机号登录", "text=扫码登录"),
		TourContainer: selector.NewTable("tour_container",
			"[role='dialog']",
			"[aria-modal='true']",
			".modal-wrap",
			".guide-dialog",
			".tour-modal",
			".xh-dialog",
			".xh-guide",
			".guide-container",
		),
		TourButton: selector.NewTable("tour_button",
			"button:has-text('下一步')",
			"button:has-text('知道了')",
			"button:has-text('我知道了')",
			"button:has-text('跳过')",
			"button:has-text('完成')",
			"[aria-label='关闭']",
		),
		FileInput: hidden("file_input",
			"div[class^='upload-content'] input[class='upload-input']",
			"div.drag-over input.upload-input[type='file'][accept*='.mp4']",
			"input.upload-input",
			"input[type='file']",
		),
		UploadSuccess: selector.NewTable("upload_success",
			"input.upload-input ~ div.preview-new div.stage:has-text('上传成功')",
			"div.preview-new div.stage:has-text('上传成功')",
			"[class^='long-card'] div:has-text('重新上传')",
		),
		UploadError:      selector.NewTable("upload_error", "div.progress-div > div:has-text('上传失败')"),
		UploadRetryInput: hidden("upload_retry_input", "div.progress-div [class^='upload-btn-input']", "input[type='file']"),
		Title: selector.NewTable("title",
			"div.plugin.title-container input.d-text",
			"input[placeholder*='填写标题']",
			"input[placeholder*='请输入标题']",
			".title-container input",
			".c-input_inner",
		),
		TitleFallback: selector.NewTable("title_fallback", ".notranslate"),
		Content: selector.NewTable("content",
			".ql-editor",
			"div[contenteditable='true']",
			".publish-editor .ql-editor",
			"div.ql-container .ql-editor",
			"[data-placeholder]",
		),
		Suggestion:        selector.NewTable("suggestion", ".suggestion", "[class*='suggestion']", "[data-decoration-id]"),
		Topic:             hidden("topic", "a.tiptap-topic"),
		ThumbnailOpen:     selector.NewTable("thumbnail_open", "text=\"选择封面\""),
		ThumbnailModal:    selector.NewTable("thumbnail_modal", "div.semi-modal-content"),
		ThumbnailVertical: selector.NewTable("thumbnail_vertical", "text=\"设置竖封面\""),
		ThumbnailInput: hidden("thumbnail_input",
			"div[class^='semi-upload upload'] >> input.semi-upload-hidden-input",
			"input[type='file']",
		),
		ThumbnailDone:  selector.NewTable("thumbnail_done", "div[class^='extractFooter'] button:has-text('完成')"),
		ScheduleToggle: selector.NewTable("schedule_toggle", "label:has-text('定时发布')"),
		ScheduleInput:  selector.NewTable("schedule_input", ".el-input__inner[placeholder='选择日期和时间']"),
		PublishButton: selector.NewTable("publish_button",
			"button:has-text('发布')",
			"button.publish-btn:has-text('发布')",
			".publish-footer button:has-text('发布')",
			"button[type='button']:has-text('发布')",
			".footer-btn button:has-text('发布')",
		),
		ScheduleButton: selector.NewTable("schedule_button",
			"button:has-text('定时发布')",
			"button.publish-btn:has-text('定时发布')",
			".publish-footer button:has-text('定时发布')",
			"button[type='button']:has-text('定时发布')",
		),
		FailureMarker: selector.NewTable("failure_marker",
			"div:has-text('发布失败')",
			"div:has-text('发布出错')",
			"div:has-text('上传失败')",
		),
	}
}

// WithOverrides applies per-target overrides under Scope.
func (t Tables) WithOverrides(ov selector.Overrides) Tables {
	for _, tbl := range []*selector.Table{
		&t.LoginPrompt, &t.TourContainer, &t.TourButton, &t.FileInput,
		&t.UploadSuccess, &t.UploadError, &t.UploadRetryInput, &t.Title,
		&t.TitleFallback, &t.Content, &t.Suggestion, &t.Topic,
		&t.ThumbnailOpen, &t.ThumbnailModal, &t.ThumbnailVertical,
		&t.ThumbnailInput, &t.ThumbnailDone, &t.ScheduleToggle,
		&t.ScheduleInput, &t.PublishButton, &t.ScheduleButton, &t.FailureMarker,
	} {
		*tbl = ov.Apply(Scope, *tbl)
	}
	return t
}
