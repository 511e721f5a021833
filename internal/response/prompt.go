package response

import (
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

func getSystemTemplate() string {
	return `Kamu adalah asisten FAQ untuk {LAB}. Jawab dalam bahasa Indonesia yang singkat dan sopan.

			ATURAN:
			1. Jawab hanya pertanyaan seputar {LAB}: {topics}
			2. Jangan mengarang nama orang, jadwal, nomor telepon atau alamat
			3. Jika tidak tahu jawabannya, minta pengguna memperjelas pertanyaan atau mengetik "menu"
			4. Maksimal tiga kalimat

			DATA LAB:
			{facts}`
}

func getUserTemplate() string {
	return `{message}`
}

// newFallbackTemplate builds the chat template used when no canned response can answer.
// Variables: topics, facts, history (optional) and message.
func newFallbackTemplate(labName string) prompt.ChatTemplate {
	systemText := strings.NewReplacer("{LAB}", labName).Replace(getSystemTemplate())

	messages := []schema.MessagesTemplate{
		schema.SystemMessage(systemText),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage(getUserTemplate()),
	}
	return prompt.FromMessages(schema.FString, messages...)
}
