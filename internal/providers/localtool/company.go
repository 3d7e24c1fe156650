package localtool

import "github.com/bytedance/sonic"

const companyDocs = `voxcore is a real-time voice orchestration platform: it bridges phone
and browser audio to speech-to-text, language-model, and text-to-speech
providers behind one deterministic conversation state machine.`

func companyInfoJSON() string {
	b, err := sonic.Marshal(map[string]string{
		"company":     "voxcore",
		"description": companyDocs,
	})
	if err != nil {
		return `{}`
	}
	return string(b)
}
