package irigb

// EncodeFields lays a record out as the classes of one frame, with reference markers at
// ReferencePositions. It is the inverse of DecodeFields for in-range records.
func EncodeFields(r TimeRecord) [FrameLen]PulseClass {
	var out [FrameLen]PulseClass
	for i := range out {
		out[i] = ClassBit0
	}
	for _, pos := range ReferencePositions {
		out[pos] = ClassReference
	}
	setBCD(&out, secondsBits, r.Seconds)
	setBCD(&out, minutesBits, r.Minutes)
	setBCD(&out, hoursBits, r.Hours)
	setBCD(&out, dayBits, r.DayOfYear)
	setBCD(&out, yearBits, r.Year)
	setBinary(&out, timeOfDayBits, r.TimeOfDaySeconds)
	setBinary(&out, controlBits, r.ControlFunctions)
	return out
}

func setBCD(out *[FrameLen]PulseClass, bits []weighted, v int) {
	for _, b := range bits {
		scale := 1
		for b.weight >= scale*10 {
			scale *= 10
		}
		digit := (v / scale) % 10
		if digit&(b.weight/scale) != 0 {
			out[b.pos] = ClassBit1
		}
	}
}

func setBinary(out *[FrameLen]PulseClass, bits []weighted, v int) {
	for _, b := range bits {
		if v&b.weight != 0 {
			out[b.pos] = ClassBit1
		}
	}
}

// FrameOf builds a frame from classes alone, with nominal edge indices at the given rate.
// Useful where only the classes matter.
func FrameOf(classes []PulseClass, rateHz float64) Frame {
	f := Frame{Pulses: make([]Pulse, len(classes))}
	slot := int64(rateHz / 100)
	for i, c := range classes {
		rising := int64(i) * slot
		f.Pulses[i] = Pulse{
			Rising:  rising,
			Falling: rising + int64(float64(nominalWidth(c))*rateHz/1000),
			WidthMs: nominalWidth(c),
			Class:   c,
		}
	}
	return f
}

func nominalWidth(c PulseClass) int {
	switch c {
	case ClassBit0:
		return WidthBit0Ms
	case ClassBit1:
		return WidthBit1Ms
	case ClassReference:
		return WidthReferenceMs
	default:
		return 0
	}
}
