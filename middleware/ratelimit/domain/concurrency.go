package domain

import "context"

// SlotPool limita quantas requisições admitidas rodam ao mesmo tempo no
// dispatcher downstream.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. A função de
// release deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	// InUse retorna quantas vagas estão ocupadas agora.
	InUse() int
	Cap() int
}
