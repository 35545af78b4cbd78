package browser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Prompt is a one-time password prompt found on a portal page.
type Prompt struct {
	Message string
	Contact string
	Channel string
}

// pageScan is the visible content of a page that matters for OTP handling.
type pageScan struct {
	texts    []string
	otpInput bool
}

var (
	promptKeywords = []string{"otp", "one time password", "one-time password", "verification code"}

	rejectionPhrases = []string{
		"invalid otp",
		"incorrect otp",
		"wrong otp",
		"otp is invalid",
		"otp is incorrect",
		"otp mismatch",
		"otp has expired",
		"otp expired",
	}

	maskedPhone = regexp.MustCompile(`\+?[0-9Xx*][0-9Xx*\s-]{5,}[0-9]{2,4}`)
	maskedEmail = regexp.MustCompile(`[A-Za-z0-9._%+*-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	spaces      = regexp.MustCompile(`\s+`)
)

// DetectPrompt reports whether the page is waiting for a one-time password.
// A page counts as prompting only if it has an OTP input field; the message is
// the first visible text mentioning the code.
func DetectPrompt(rawHTML string) (Prompt, bool, error) {
	scan, err := scanPage(rawHTML)
	if err != nil {
		return Prompt{}, false, err
	}
	if !scan.otpInput {
		return Prompt{}, false, nil
	}

	var p Prompt
	for _, text := range scan.texts {
		if containsAny(strings.ToLower(text), promptKeywords) {
			p.Message = text
			break
		}
	}

	switch {
	case maskedEmail.MatchString(p.Message):
		p.Contact = maskedEmail.FindString(p.Message)
		p.Channel = "email"
	case maskedPhone.MatchString(p.Message):
		p.Contact = strings.TrimSpace(maskedPhone.FindString(p.Message))
		p.Channel = "sms"
	case strings.Contains(strings.ToLower(p.Message), "email"):
		p.Channel = "email"
	default:
		p.Channel = "sms"
	}
	return p, true, nil
}

// DetectRejection reports whether the page shows an OTP error and returns the
// text that said so.
func DetectRejection(rawHTML string) (string, bool, error) {
	scan, err := scanPage(rawHTML)
	if err != nil {
		return "", false, err
	}
	for _, text := range scan.texts {
		if containsAny(strings.ToLower(text), rejectionPhrases) {
			return text, true, nil
		}
	}
	return "", false, nil
}

func scanPage(rawHTML string) (*pageScan, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	scan := &pageScan{}
	scanNode(doc, scan)
	return scan, nil
}

func scanNode(n *html.Node, scan *pageScan) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if text := strings.TrimSpace(spaces.ReplaceAllString(n.Data, " ")); text != "" {
			scan.texts = append(scan.texts, text)
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) || isHidden(n) {
			return
		}
		if tag == "input" && isOTPInput(n) {
			scan.otpInput = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		scanNode(c, scan)
	}
}

// isSkippedElement returns true for elements that never carry visible text
func isSkippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template", "svg", "iframe", "object", "embed":
		return true
	}
	return false
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		val := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
		switch {
		case key == "hidden":
			return true
		case key == "aria-hidden" && val == "true":
			return true
		case key == "style" && strings.Contains(val, "display:none"):
			return true
		}
	}
	return false
}

func isOTPInput(n *html.Node) bool {
	if strings.EqualFold(attr(n, "type"), "hidden") {
		return false
	}
	if strings.EqualFold(attr(n, "autocomplete"), "one-time-code") {
		return true
	}
	for _, key := range []string{"name", "id", "placeholder", "aria-label"} {
		if strings.Contains(strings.ToLower(attr(n, key)), "otp") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
