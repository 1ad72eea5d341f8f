package common

// Key codes delivered to window key callbacks. They are GLFW key codes: printable keys use their ASCII value.
const (
	KeySpace = 32
	KeyR     = 82
	KeyW     = 87

	KeyEsc       = 256
	KeyEnter     = 257
	KeyBackspace = 259
	KeyF1        = 290
	KeyF5        = 294
)
