package nlu

// Action is one entry of the closed command vocabulary the language model
// chooses from.
type Action string

const (
	LightOn            Action = "LIGHT_ON"
	LightOff           Action = "LIGHT_OFF"
	TakePhoto          Action = "TAKE_PHOTO"
	CheckTemp          Action = "CHECK_TEMP"
	ActivateSecurity   Action = "ACTIVATE_SECURITY"
	DeactivateSecurity Action = "DEACTIVATE_SECURITY"
	TellTime           Action = "TELL_TIME"
	TellWeather        Action = "TELL_WEATHER"
	PlayMusic          Action = "PLAY_MUSIC"
	StopMusic          Action = "STOP_MUSIC"
	TellNews           Action = "TELL_NEWS"
	GeneralResponse    Action = "GENERAL_RESPONSE"
)

var actions = []Action{
	LightOn,
	LightOff,
	TakePhoto,
	CheckTemp,
	ActivateSecurity,
	DeactivateSecurity,
	TellTime,
	TellWeather,
	PlayMusic,
	StopMusic,
	TellNews,
	GeneralResponse,
}

var actionByName = func() map[string]Action {
	m := make(map[string]Action, len(actions))
	for _, a := range actions {
		m[string(a)] = a
	}
	return m
}()

// Actions returns the vocabulary in prompt order.
func Actions() []Action {
	return append([]Action(nil), actions...)
}

// LookupAction matches name against the vocabulary. Matching is case-sensitive.
func LookupAction(name string) (Action, bool) {
	a, ok := actionByName[name]
	return a, ok
}

func (a Action) String() string {
	return string(a)
}
