package service

// User-facing texts for failure paths. These go out over WhatsApp verbatim.
const (
	errorResponse = "Unable to process your request at the moment.\n" +
		"Please try again or contact your HSE officer directly."

	emptyMessageResponse = "Please send a short safety question or greeting."

	voiceDownloadFailed = "Could not download voice message. Please try again or send a text message."

	voiceNotUnderstood = "Voice message could not be understood. Please try again or send a text message."
)
