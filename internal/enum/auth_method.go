package enum

type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthOAuth    AuthMethod = "oauth"
)

func (m AuthMethod) String() string {
	return string(m)
}

type RichFormat string

const (
	FormatPlain    RichFormat = "plain"
	FormatMarkdown RichFormat = "markdown"
	FormatHTML     RichFormat = "html"
)

func (f RichFormat) String() string {
	return string(f)
}
