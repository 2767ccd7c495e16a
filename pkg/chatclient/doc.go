// Package chatclient реализует клиентскую сторону чата поездки.
//
// Session ведёт жизненный цикл подключения к комнате поездки
// (disconnected → connecting → joining → joined) поверх Transport.
// Timeline сводит историю, полученную через HistoryClient, с живыми
// сообщениями в один упорядоченный список без дублей и управляет
// прокруткой. Все подписки возвращают Subscription, которую нужно
// отменить при закрытии экрана.
package chatclient
