// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import "fmt"

// Opcode is a request's major opcode. Values 1-127 are core protocol
// requests; 128-255 are assigned to extensions at runtime.
type Opcode uint8

// Core opcodes the proxy refers to by name.
const (
	OpCreateWindow Opcode = 1
	OpNoOperation  Opcode = 127

	// FirstExtensionOpcode is the lowest opcode an extension can be
	// assigned.
	FirstExtensionOpcode Opcode = 128
)

var opcodeNames = map[Opcode]string{
	1:   "CreateWindow",
	2:   "ChangeWindowAttributes",
	3:   "GetWindowAttributes",
	4:   "DestroyWindow",
	5:   "DestroySubwindows",
	6:   "ChangeSaveSet",
	7:   "ReparentWindow",
	8:   "MapWindow",
	9:   "MapSubwindows",
	10:  "UnmapWindow",
	11:  "UnmapSubwindows",
	12:  "ConfigureWindow",
	13:  "CirculateWindow",
	14:  "GetGeometry",
	15:  "QueryTree",
	16:  "InternAtom",
	17:  "GetAtomName",
	18:  "ChangeProperty",
	19:  "DeleteProperty",
	20:  "GetProperty",
	21:  "ListProperties",
	22:  "SetSelectionOwner",
	23:  "GetSelectionOwner",
	24:  "ConvertSelection",
	25:  "SendEvent",
	26:  "GrabPointer",
	27:  "UngrabPointer",
	28:  "GrabButton",
	29:  "UngrabButton",
	30:  "ChangeActivePointerGrab",
	31:  "GrabKeyboard",
	32:  "UngrabKeyboard",
	33:  "GrabKey",
	34:  "UngrabKey",
	35:  "AllowEvents",
	36:  "GrabServer",
	37:  "UngrabServer",
	38:  "QueryPointer",
	39:  "GetMotionEvents",
	40:  "TranslateCoordinates",
	41:  "WarpPointer",
	42:  "SetInputFocus",
	43:  "GetInputFocus",
	44:  "QueryKeymap",
	45:  "OpenFont",
	46:  "CloseFont",
	47:  "QueryFont",
	48:  "QueryTextExtents",
	49:  "ListFonts",
	50:  "ListFontsWithInfo",
	51:  "SetFontPath",
	52:  "GetFontPath",
	53:  "CreatePixmap",
	54:  "FreePixmap",
	55:  "CreateGC",
	56:  "ChangeGC",
	57:  "CopyGC",
	58:  "SetDashes",
	59:  "SetClipRectangles",
	60:  "FreeGC",
	61:  "ClearArea",
	62:  "CopyArea",
	63:  "CopyPlane",
	64:  "PolyPoint",
	65:  "PolyLine",
	66:  "PolySegment",
	67:  "PolyRectangle",
	68:  "PolyArc",
	69:  "FillPoly",
	70:  "PolyFillRectangle",
	71:  "PolyFillArc",
	72:  "PutImage",
	73:  "GetImage",
	74:  "PolyText8",
	75:  "PolyText16",
	76:  "ImageText8",
	77:  "ImageText16",
	78:  "CreateColormap",
	79:  "FreeColormap",
	80:  "CopyColormapAndFree",
	81:  "InstallColormap",
	82:  "UninstallColormap",
	83:  "ListInstalledColormaps",
	84:  "AllocColor",
	85:  "AllocNamedColor",
	86:  "AllocColorCells",
	87:  "AllocColorPlanes",
	88:  "FreeColors",
	89:  "StoreColors",
	90:  "StoreNamedColor",
	91:  "QueryColors",
	92:  "LookupColor",
	93:  "CreateCursor",
	94:  "CreateGlyphCursor",
	95:  "FreeCursor",
	96:  "RecolorCursor",
	97:  "QueryBestSize",
	98:  "QueryExtension",
	99:  "ListExtensions",
	100: "ChangeKeyboardMapping",
	101: "GetKeyboardMapping",
	102: "ChangeKeyboardControl",
	103: "GetKeyboardControl",
	104: "Bell",
	105: "ChangePointerControl",
	106: "GetPointerControl",
	107: "SetScreenSaver",
	108: "GetScreenSaver",
	109: "ChangeHosts",
	110: "ListHosts",
	111: "SetAccessControl",
	112: "SetCloseDownMode",
	113: "KillClient",
	114: "RotateProperties",
	115: "ForceScreenSaver",
	116: "SetPointerMapping",
	117: "GetPointerMapping",
	118: "SetModifierMapping",
	119: "GetModifierMapping",
	127: "NoOperation",
}

// String returns the request name, "Extension" for extension opcodes,
// and "Unknown" for unassigned core opcodes.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	if o >= FirstExtensionOpcode {
		return "Extension"
	}
	return "Unknown"
}

// EventCode is the type byte of an event, with the SendEvent bit
// cleared.
type EventCode uint8

// Event codes with special framing.
const (
	EventKeymapNotify EventCode = 11
	EventGenericEvent EventCode = 35

	// sendEventBit is set in the type byte of events generated by a
	// SendEvent request.
	sendEventBit = 0x80
)

var eventNames = map[EventCode]string{
	2:  "KeyPress",
	3:  "KeyRelease",
	4:  "ButtonPress",
	5:  "ButtonRelease",
	6:  "MotionNotify",
	7:  "EnterNotify",
	8:  "LeaveNotify",
	9:  "FocusIn",
	10: "FocusOut",
	11: "KeymapNotify",
	12: "Expose",
	13: "GraphicsExposure",
	14: "NoExposure",
	15: "VisibilityNotify",
	16: "CreateNotify",
	17: "DestroyNotify",
	18: "UnmapNotify",
	19: "MapNotify",
	20: "MapRequest",
	21: "ReparentNotify",
	22: "ConfigureNotify",
	23: "ConfigureRequest",
	24: "GravityNotify",
	25: "ResizeRequest",
	26: "CirculateNotify",
	27: "CirculateRequest",
	28: "PropertyNotify",
	29: "SelectionClear",
	30: "SelectionRequest",
	31: "SelectionNotify",
	32: "ColormapNotify",
	33: "ClientMessage",
	34: "MappingNotify",
	35: "GenericEvent",
}

func (e EventCode) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	if e >= 64 {
		return "ExtensionEvent"
	}
	return "Unknown"
}

// ErrorCode is the error number carried in byte 1 of an error.
type ErrorCode uint8

var errorNames = map[ErrorCode]string{
	1:  "Request",
	2:  "Value",
	3:  "Window",
	4:  "Pixmap",
	5:  "Atom",
	6:  "Cursor",
	7:  "Font",
	8:  "Match",
	9:  "Drawable",
	10: "Access",
	11: "Alloc",
	12: "Colormap",
	13: "GContext",
	14: "IDChoice",
	15: "Name",
	16: "Length",
	17: "Implementation",
}

func (e ErrorCode) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	if e >= 128 {
		return "ExtensionError"
	}
	return "Unknown"
}

// SetupResult is the first byte of the server's setup reply.
type SetupResult uint8

const (
	SetupFailed       SetupResult = 0
	SetupSuccess      SetupResult = 1
	SetupAuthenticate SetupResult = 2
)

func (r SetupResult) String() string {
	switch r {
	case SetupFailed:
		return "Failed"
	case SetupSuccess:
		return "Success"
	case SetupAuthenticate:
		return "Authenticate"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(r))
	}
}
