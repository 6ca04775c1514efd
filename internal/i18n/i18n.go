package i18n

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "turnstile_lang"
)

var (
	TraditionalChinese = language.MustParse("zh-TW")
	English            = language.English
)

// The first tag is the default.
var supportedTags = []language.Tag{TraditionalChinese, English}

var tagMatcher = language.NewMatcher(supportedTags)

// Message keys.
const (
	KeyTitle              = "page.title"
	KeyRegisterHeading    = "register.heading"
	KeyStudentIDLabel     = "register.student_id"
	KeyNameLabel          = "register.name"
	KeyRegisterSubmit     = "register.submit"
	KeyAlreadyRegistered  = "register.already_registered"
	KeyRegistrationFailed = "register.failed"
	KeyInvalidRequest     = "error.invalid_request"
	KeyInvalidStudentID   = "error.invalid_student_id"
	KeyInvalidName        = "error.invalid_name"
	KeyInvalidCredential  = "error.invalid_credential"
	KeyInvalidAction      = "error.invalid_action"
	KeySuccessHeading     = "success.heading"
	KeySuccessBound       = "success.bound"
	KeySuccessUnbound     = "success.unbound"
	KeyScanSuccess        = "scan.success"
	KeyIdentityNotFound   = "error.identity_not_found"
	KeyCredentialMismatch = "error.credential_mismatch"
	KeyCredentialInUse    = "error.credential_in_use"
	KeyTooManyScans       = "error.too_many_scans"
	KeyInternal           = "error.internal"
)

var messages = map[language.Tag]map[string]string{
	TraditionalChinese: {
		KeyTitle:              "門禁註冊",
		KeyRegisterHeading:    "學生註冊",
		KeyStudentIDLabel:     "學號",
		KeyNameLabel:          "姓名",
		KeyRegisterSubmit:     "註冊",
		KeyAlreadyRegistered:  "❌ 學號已註冊，請直接刷卡進門",
		KeyRegistrationFailed: "註冊失敗",
		KeyInvalidRequest:     "請填寫學號與姓名",
		KeyInvalidStudentID:   "請填寫學號（最多 %d 字）",
		KeyInvalidName:        "請填寫姓名（最多 %d 字）",
		KeyInvalidCredential:  "缺少 RFID 卡號（最多 %d 字）",
		KeyInvalidAction:      "動作必須為 entry 或 exit",
		KeySuccessHeading:     "註冊成功",
		KeySuccessBound:       "已綁定卡片",
		KeySuccessUnbound:     "尚未綁定卡片，首次刷卡時將自動綁定",
		KeyScanSuccess:        "%s 成功",
		KeyIdentityNotFound:   "用戶不存在",
		KeyCredentialMismatch: "RFID 與註冊資料不符",
		KeyCredentialInUse:    "此卡片已綁定其他學號",
		KeyTooManyScans:       "刷卡過於頻繁，請稍後再試",
		KeyInternal:           "伺服器錯誤",
	},
	English: {
		KeyTitle:              "Access registration",
		KeyRegisterHeading:    "Student registration",
		KeyStudentIDLabel:     "Student ID",
		KeyNameLabel:          "Name",
		KeyRegisterSubmit:     "Register",
		KeyAlreadyRegistered:  "❌ Student ID already registered, scan your card at the door",
		KeyRegistrationFailed: "Registration failed",
		KeyInvalidRequest:     "Student ID and name are required",
		KeyInvalidStudentID:   "Student ID is required (max %d characters)",
		KeyInvalidName:        "Name is required (max %d characters)",
		KeyInvalidCredential:  "RFID UID is required (max %d characters)",
		KeyInvalidAction:      "Action must be entry or exit",
		KeySuccessHeading:     "Registration complete",
		KeySuccessBound:       "Card bound",
		KeySuccessUnbound:     "No card bound yet; your first scan will bind it",
		KeyScanSuccess:        "%s succeeded",
		KeyIdentityNotFound:   "User not found",
		KeyCredentialMismatch: "RFID does not match the registered card",
		KeyCredentialInUse:    "This card is bound to another student ID",
		KeyTooManyScans:       "Too many scans, try again shortly",
		KeyInternal:           "Server error",
	},
}

var cat = mustBuildCatalog()

func mustBuildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(Default()))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Default returns the default language tag.
func Default() language.Tag {
	return supportedTags[0]
}

// Printer returns a message printer for the supplied tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(cat))
}

// ResolveTag determines the best language tag for the request: the lang
// query param, then the cookie, then Accept-Language.
// The bool indicates whether the lang query param should be persisted as a cookie.
func ResolveTag(r *http.Request) (language.Tag, bool) {
	if r == nil {
		return Default(), false
	}

	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" {
		if tag, ok := parseTag(v); ok {
			return tag, true
		}
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := parseTag(cookie.Value); ok {
			return tag, false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, conf := tagMatcher.Match(tags...)
			if conf != language.No {
				return supportedTags[idx], false
			}
		}
	}

	return Default(), false
}

// SetLanguageCookie persists the selected language on the response.
func SetLanguageCookie(w http.ResponseWriter, tag language.Tag) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

func parseTag(value string) (language.Tag, bool) {
	parsed, err := language.Parse(value)
	if err != nil {
		return language.Tag{}, false
	}
	_, idx, conf := tagMatcher.Match(parsed)
	if conf == language.No {
		return language.Tag{}, false
	}
	return supportedTags[idx], true
}
