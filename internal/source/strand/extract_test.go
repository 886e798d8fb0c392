package strand

import (
	"errors"
	"testing"

	"github.com/marqueetv/marquee/internal/domain"
)

const storefrontHTML = `<!DOCTYPE html>
<html>
<head>
<title>Strand</title>
<script type="text/template"><h1>{{heading}}</h1></script>
</head>
<body>
<div id="app"></div>
<script type="text/template">
{"props":{"storefront":{"containers":[
{"id":"hero-1","title":"Featured","type":"hero","items":[
{"id":"tt1001","title":"Night Alley","contentType":"MOVIE","year":2021,"runtimeSeconds":5400,
"images":{"cover":"https://img.strand.tv/tt1001/cover.jpg"}}]},
{"id":"rail-action","title":"Action Movies","type":"rail","seeMoreRef":"col/v2/action"}
],"pagination":{"cursor":"pg2","hasMore":true}}}}
</script>
</body>
</html>`

const bootstrapHTML = `<!DOCTYPE html>
<html>
<head><title>Strand</title></head>
<body>
<div id="app"></div>
<script>
window.__FLAGS__ = {"props":{}};
window.__BOOT__ = {"props":{"collection":{"container":
{"id":"col-noir","title":"Noir {classics}","type":"grid","items":[
{"id":"tt4001","title":"Back Alley \"Kings\"","contentType":"MOVIE","year":1950,
"images":{"poster":"https://img.strand.tv/tt4001/poster.jpg"}}]},
"pagination":{"cursor":"n2","hasMore":true}}}};
</script>
</body>
</html>`

const signinHTML = `<html><body>
<form name="signIn" method="post" action="/signin/submit">
<input type="hidden" name="appAction" value="SIGNIN"/>
<input type="hidden" name="workflowState" value="wf-123"/>
<input type="email" name="email"/>
<input type="password" name="password"/>
</form>
</body></html>`

const mfaHTML = `<html><body>
<form id="mfa-challenge" method="post" action="/signin/challenge">
<p class="challenge-prompt">Enter the code we sent to your phone.</p>
<input type="hidden" name="challengeToken" value="mfa-token-9"/>
<input type="text" name="answer"/>
</form>
</body></html>`

const captchaHTML = `<html><body>
<form id="captcha-challenge" method="post" action="/signin/challenge">
<img class="challenge-image" src="https://img.strand.tv/captcha/77.png"/>
<input type="hidden" name="challengeToken" value="cap-token-3"/>
<input type="text" name="answer"/>
</form>
</body></html>`

const authErrorHTML = `<html><body>
<div id="auth-error">
Incorrect email or password.
</div>
</body></html>`

func TestExtractTemplateProps(t *testing.T) {
	props, err := extractTemplateProps([]byte(storefrontHTML))
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	sf := props.Props.Storefront
	if sf == nil {
		t.Fatal("expected storefront payload")
	}
	if len(sf.Containers) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(sf.Containers))
	}
	if sf.Containers[0].Items[0].ID != "tt1001" {
		t.Fatalf("unexpected first item: %+v", sf.Containers[0].Items[0])
	}
	if sf.Containers[1].SeeMoreRef != "col/v2/action" {
		t.Fatalf("unexpected rail ref: %q", sf.Containers[1].SeeMoreRef)
	}
	if sf.Pagination == nil || sf.Pagination.Cursor != "pg2" {
		t.Fatalf("unexpected pagination: %+v", sf.Pagination)
	}
}

func TestExtractTemplatePropsMissing(t *testing.T) {
	_, err := extractTemplateProps([]byte(`<html><body>nothing here</body></html>`))
	if !errors.Is(err, errNoEmbeddedJSON) {
		t.Fatalf("expected errNoEmbeddedJSON, got %v", err)
	}
}

func TestExtractTemplatePropsBootstrapFallback(t *testing.T) {
	props, err := extractTemplateProps([]byte(bootstrapHTML))
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	col := props.Props.Collection
	if col == nil {
		t.Fatal("expected collection payload")
	}
	if col.Container.ID != "col-noir" {
		t.Fatalf("unexpected container: %+v", col.Container)
	}
	if col.Container.Title != "Noir {classics}" {
		t.Fatalf("braces inside strings must not end the scan: %q", col.Container.Title)
	}
	if col.Container.Items[0].Title != `Back Alley "Kings"` {
		t.Fatalf("escaped quotes must survive the scan: %q", col.Container.Items[0].Title)
	}
	if col.Pagination == nil || col.Pagination.Cursor != "n2" {
		t.Fatalf("unexpected pagination: %+v", col.Pagination)
	}
}

func TestExtractLoginForm(t *testing.T) {
	form, err := extractLoginForm([]byte(signinHTML), "https://www.strand.tv/signin")
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if form.Action != "https://www.strand.tv/signin/submit" {
		t.Fatalf("action not resolved against page URL: %q", form.Action)
	}
	if form.Fields.Get("appAction") != "SIGNIN" || form.Fields.Get("workflowState") != "wf-123" {
		t.Fatalf("hidden fields not captured: %v", form.Fields)
	}
	if _, ok := form.Fields["email"]; ok {
		t.Fatal("visible inputs must not be captured as hidden fields")
	}
}

func TestExtractLoginFormMissing(t *testing.T) {
	_, err := extractLoginForm([]byte(`<html><body></body></html>`), "https://www.strand.tv/signin")
	if !errors.Is(err, errNoLoginForm) {
		t.Fatalf("expected errNoLoginForm, got %v", err)
	}
}

func TestChallengeFrom(t *testing.T) {
	ch := challengeFrom([]byte(mfaHTML))
	if ch == nil || ch.Kind != domain.ChallengeMFA {
		t.Fatalf("expected MFA challenge, got %+v", ch)
	}
	if ch.Token != "mfa-token-9" {
		t.Fatalf("unexpected token: %q", ch.Token)
	}
	if ch.Hint != "Enter the code we sent to your phone." {
		t.Fatalf("unexpected hint: %q", ch.Hint)
	}

	ch = challengeFrom([]byte(captchaHTML))
	if ch == nil || ch.Kind != domain.ChallengeCaptcha {
		t.Fatalf("expected captcha challenge, got %+v", ch)
	}
	if ch.Hint != "https://img.strand.tv/captcha/77.png" {
		t.Fatalf("captcha hint should carry the image URL, got %q", ch.Hint)
	}

	if ch := challengeFrom([]byte(signinHTML)); ch != nil {
		t.Fatalf("plain pages must not produce a challenge, got %+v", ch)
	}
}

func TestFailureReason(t *testing.T) {
	if got := failureReason([]byte(authErrorHTML)); got != "Incorrect email or password." {
		t.Fatalf("unexpected reason: %q", got)
	}
	if got := failureReason([]byte(signinHTML)); got != "" {
		t.Fatalf("expected empty reason, got %q", got)
	}
}
