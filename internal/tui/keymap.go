package tui

// Key binding constants used in handleKey.
const (
	keyQuit      = "q"
	keyCtrlC     = "ctrl+c"
	keyRecord    = "r"
	keySpace     = " "
	keyPause     = "p"
	keyDiscard   = "x"
	keySearch    = "/"
	keyUp        = "up"
	keyDown      = "down"
	keyJ         = "j"
	keyK         = "k"
	keyEnter     = "enter"
	keyEsc       = "esc"
	keyRename    = "e"
	keyDelete    = "d"
	keyShare     = "s"
	keyReload    = "L"
	keyYes       = "y"
	keyNo        = "n"
	keyBackspace = "backspace"
)
