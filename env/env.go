package env

type Args struct {
	Test     *bool
	Verbose  *bool
	Lirc     *bool
	Codes    *string
	RxPin    *string
	TxPin    *string
	LedPin   *string
	Metrics  *string
	Captures *int
}
