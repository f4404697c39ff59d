package iocli

// IO - терминальный ввод-вывод команд клиента
// Пароли читаются без эха
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
}
