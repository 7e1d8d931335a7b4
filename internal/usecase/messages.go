package usecase

import "fmt"

// User-facing replies.
const (
	WelcomeText = "🏥 AMBUBOT - Virtual Healthcare Assistant \n 🔹 HELLO! I'm Dr. Doc Bot. Describe your symptoms, and I'll provide easy at-home remedies! \n 📝 Enter your symptoms below: "

	OffTopicText   = "⚠️ I'm here to assist with health-related concerns only. Please describe any symptoms you're experiencing."
	IrrelevantText = "⚠️ That doesn't seem to answer the question. Let's try again."
	RestartText    = "⚠️ An error occurred. Please restart your query."
	GoodbyeText    = "👋 Take care! Send a new message whenever you want to describe another symptom."
	AlertText      = "🚨 Your symptoms may need urgent care. If this is an emergency call your local emergency number, or send your location to /location to find the nearest hospitals."

	FallbackText    = "⚠️ Sorry, I couldn't process your request."
	TooLongText     = "⚠️ Your message is too long. Please shorten it and try again."
	ConflictText    = "⚠️ Your previous message is still being processed. Please send this one again."
	RateLimitedText = "⚠️ I'm receiving too many requests right now. Please try again in a moment."

	LocationPromptText    = "⚠️ Please enter your location (City, State/Country)."
	NoCoordinatesText     = "❌ Unable to find coordinates for the entered location."
	NoHospitalsText       = "❌ No hospitals found nearby. Please call emergency services."
	NoGeneralHospitalText = "❌ No general hospitals found nearby. Please call emergency services."
)

func followUpText(n int, question string) string {
	return fmt.Sprintf("🤖 Follow-up question %d: %s", n, question)
}

func remedyText(remedy string) string {
	return "🩺 " + remedy
}

func hospitalLine(name string) string {
	return "🏥 " + name
}
