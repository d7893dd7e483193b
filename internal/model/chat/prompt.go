package chat

// fileSeparator labels the attached file inside a prompt.
const fileSeparator = "\n\nFile content:\n"

// BuildPrompt combines the user text with the attached file text.
func BuildPrompt(userText, fileText string) string {
	if fileText == "" {
		return userText
	}
	return userText + fileSeparator + fileText
}
