package server

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m" // Bright black, often appears as gray

	ResetColor = "\033[0m" // Reset to default color
)

var methodColors = map[string]string{
	"GET":     Green,
	"HEAD":    Green,
	"POST":    Blue,
	"OPTIONS": Cyan,
	"PUT":     Yellow,
	"DELETE":  Red,
}

// colouredMethod pads method for aligned console output.
func colouredMethod(method string) string {
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	return color + padMethod(method) + ResetColor
}

func padMethod(method string) string {
	const width = 7
	for len(method) < width {
		method += " "
	}
	return " " + method
}
