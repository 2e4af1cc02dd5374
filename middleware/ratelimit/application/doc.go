// Package application contém os casos de uso do gate de admissão: a policy de
// janela fixa, o Service com a política de falha, o Sweeper e o limite de
// concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key, now) retorna uma Decision (allow/deny + retry-after).
package application
